package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lunasched/lunasched/internal/health"
)

// HealthHandler serves the /healthz and /readyz endpoints.
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler wires a HealthHandler to checker.
func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Liveness(c.Request.Context()))
}

func (h *HealthHandler) Readiness(c *gin.Context) {
	result := h.checker.Readiness(c.Request.Context())
	status := http.StatusOK
	if result.Status != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
