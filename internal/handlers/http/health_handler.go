package http

import (
	"context"
	"net/http"
	"time"

	"livebridge/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker   *monitoring.HealthChecker
	startTime time.Time
	timeout   time.Duration
}

func NewHealthHandler(checker *monitoring.HealthChecker, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		startTime: time.Now(),
		timeout:   timeout,
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

// Ready runs every registered dependency check.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result := h.checker.CheckAll(ctx)
	if result.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not_ready",
			"timestamp":    result.Timestamp,
			"dependencies": result.Checks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"timestamp":    result.Timestamp,
		"dependencies": result.Checks,
	})
}
