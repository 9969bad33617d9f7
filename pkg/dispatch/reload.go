package dispatch

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"skeleton/pkg/httpx"
	"skeleton/pkg/metrics"
)

// Reloader refreshes cached configuration.
type Reloader interface {
	Reload(ctx context.Context) error
}

type ReloadResult struct {
	Status    bool   `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ReloadHandler answers POST /system/reload.
type ReloadHandler struct {
	Reloader Reloader
	Metrics  *metrics.Registry
	Logger   *zap.Logger
	now      func() time.Time
}

func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if h.now != nil {
		now = h.now()
	}
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	err := h.Reloader.Reload(r.Context())
	h.Metrics.Reload(err)
	res := ReloadResult{Status: true, Message: "Configuration reloaded.", Timestamp: now.Format(time.RFC3339)}
	status := http.StatusOK
	if err != nil {
		logger.Error("registry reload failed", zap.Error(err))
		res.Status = false
		res.Message = "Reload failed."
		status = http.StatusInternalServerError
	} else {
		logger.Info("registry reloaded")
	}
	httpx.WriteJSON(w, status, res)
}
