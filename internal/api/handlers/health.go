package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	Services       map[string]string `json:"services"`
	ActiveSessions int               `json:"active_sessions"`
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{"api": "healthy"}
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			services[name] = "unhealthy"
		} else {
			services[name] = "healthy"
		}
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status == "unhealthy" {
			overallStatus = "degraded"
			break
		}
	}
	if h.draining.Load() {
		overallStatus = "draining"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:         overallStatus,
		Timestamp:      time.Now().Format(time.RFC3339),
		Services:       services,
		ActiveSessions: h.registry.Len(),
	})
}
