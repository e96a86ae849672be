package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/dittobtt/pkg/btt"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the device attached and serving I/O?
type HealthHandler struct {
	dev       Device
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
//
// The device may be nil, in which case the readiness probe reports
// unhealthy.
func NewHealthHandler(dev Device) *HealthHandler {
	return &HealthHandler{dev: dev, startTime: time.Now()}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "dittobtt",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 200 OK once the layout is ready. A device with no layout yet
// still serves zero-filled reads, but is reported as not ready so a
// supervisor can tell it apart from a formatted one.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.dev == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("device not attached"))
		return
	}

	state := h.dev.State()
	if state != btt.StateReady {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("device state: "+state.String()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"state":     state.String(),
		"lba_size":  h.dev.LBASize(),
		"nlba":      h.dev.NumLBA(),
		"read_only": h.dev.ReadOnly(),
	}))
}
