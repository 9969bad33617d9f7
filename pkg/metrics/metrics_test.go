package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry()
	r.DispatchOutcome("ok")
	r.DispatchOutcome("ok")
	r.DispatchOutcome("RateLimited")
	r.Reload(nil)
	r.Reload(errors.New("db down"))

	if got := testutil.ToFloat64(r.outcomes.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected ok=2 got %v", got)
	}
	if got := testutil.ToFloat64(r.outcomes.WithLabelValues("RateLimited")); got != 1 {
		t.Fatalf("expected RateLimited=1 got %v", got)
	}
	if got := testutil.ToFloat64(r.reloads.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected one failed reload got %v", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.DispatchOutcome("ok")
	r.Reload(nil)
	r.Observe(http.MethodGet, "/", 200, time.Millisecond)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	reg := NewRegistry()
	router := chi.NewRouter()
	router.Use(reg.Middleware)
	router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	for _, p := range []string{"/billing-reports", "/hr/leave"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if got := testutil.ToFloat64(reg.requests.WithLabelValues(http.MethodGet, "/*", "404")); got != 2 {
		t.Fatalf("expected both paths under one series, got %v", got)
	}

	rr := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, `skeleton_http_requests_total{method="GET",route="/*",status="404"} 2`) {
		t.Fatalf("missing request series in exposition:\n%s", body)
	}
	if !strings.Contains(body, "skeleton_http_request_duration_seconds_bucket") {
		t.Fatal("missing latency histogram")
	}
}
