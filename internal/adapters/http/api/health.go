package api

import (
	"context"
	"net/http"

	"github.com/okian/tutormarket/internal/domain/types"
)

// HealthProvider reports liveness of the service and its database.
type HealthProvider interface {
	Health(ctx context.Context) types.Health
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	provider HealthProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(provider HealthProvider) *HealthHandler {
	return &HealthHandler{provider: provider}
}

// HandleHealth handles GET /healthz. Anything but "ok" answers 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.provider.Health(r.Context())
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
