package handler

import (
	"net/http"
	"time"

	"github.com/workzone/workzone-mcp/internal/apiclient"
	"github.com/workzone/workzone-mcp/internal/models"
)

// BreakerReporter exposes the backend circuit state.
type BreakerReporter interface {
	BreakerState() apiclient.State
}

// HealthHandler handles GET /health
type HealthHandler struct {
	backend BreakerReporter
	service string
	version string
	now     func() time.Time
}

func NewHealthHandler(backend BreakerReporter, service, version string) *HealthHandler {
	return &HealthHandler{backend: backend, service: service, version: version, now: time.Now}
}

// Health reports "Healthy" while the backend circuit is closed. An open
// circuit answers 503 so load balancers stop routing here.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	status := "Healthy"
	code := http.StatusOK

	if h.backend != nil {
		state := h.backend.BreakerState()
		checks["backend_circuit"] = state.String()
		switch state {
		case apiclient.StateOpen:
			status = "Degraded"
			code = http.StatusServiceUnavailable
		case apiclient.StateHalfOpen:
			status = "Degraded"
		}
	} else {
		checks["backend_circuit"] = "disabled"
	}

	models.WriteJSON(w, code, models.HealthResponse{
		Status:    status,
		Service:   h.service,
		Version:   h.version,
		Timestamp: h.now().UTC(),
		Checks:    checks,
	})
}
