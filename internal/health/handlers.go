package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger probes a dependency for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints. Probes maps a
// dependency name to its prober.
type Handler struct {
	Probes  map[string]Pinger
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	status := make(map[string]string, len(h.Probes))
	healthy := true
	for name, probe := range h.Probes {
		if probe == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		if err := probe.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
		} else {
			status[name] = "ok"
		}
		cancel()
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
