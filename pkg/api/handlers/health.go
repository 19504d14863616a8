package handlers

import (
	"net/http"

	"github.com/s3lite/s3lite/pkg/registry"
)

// HealthHandler handles the unauthenticated liveness and readiness probes.
type HealthHandler struct {
	registry *registry.Registry
}

// NewHealthHandler creates a new health handler. registry may be nil, in
// which case readiness always reports unhealthy.
func NewHealthHandler(reg *registry.Registry) *HealthHandler {
	return &HealthHandler{registry: reg}
}

// Liveness handles GET /health: always 200 while the process is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "s3lite",
	}))
}

// Readiness handles GET /health/ready: 200 once the bucket registry has
// opened, 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("registry not initialized"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"buckets":   h.registry.Count(),
		"root":      h.registry.Root(),
		"read_only": h.registry.ReadOnly(),
	}))
}
