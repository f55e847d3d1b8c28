package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mivoto/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
	log       *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
		log:       container.GetLogger().Component("health"),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Service    string            `json:"service"`
	LedgerMode string            `json:"ledgerMode"`
	Checks     map[string]string `json:"checks"`
}

// Check handles GET /health. Postgres failures make the service unhealthy;
// Redis failures only degrade it.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Version:    "1.0.0",
		Service:    "mivoto",
		LedgerMode: h.container.GetConfig().Ledger.Mode,
		Checks:     map[string]string{"postgres": "disabled", "redis": "disabled"},
	}
	status := http.StatusOK

	if db := h.container.GetDB(); db != nil {
		response.Checks["postgres"] = "ok"
		if err := db.Health(ctx); err != nil {
			h.log.Error("Postgres health check failed", zap.Error(err))
			response.Checks["postgres"] = "unavailable"
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	if h.container.HasRedis() {
		response.Checks["redis"] = "ok"
		if err := h.container.GetRedisClient().Health(ctx); err != nil {
			h.log.Warn("Redis health check failed", zap.Error(err))
			response.Checks["redis"] = "unavailable"
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
		}
	}

	respondJSON(w, status, response, h.log)
}
