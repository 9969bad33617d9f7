package audit

import (
	"net/http"
	"strconv"

	"skeleton/pkg/httpx"
)

// Handler lists recent events. Query parameters: user_id, limit.
func Handler(w *Writer) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := w.Recent(r.Context(), r.URL.Query().Get("user_id"), limit)
		if err != nil {
			httpx.Error(rw, http.StatusInternalServerError, "Could not load audit events.")
			return
		}
		httpx.OK(rw, events, "")
	}
}
