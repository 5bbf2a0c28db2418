package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/logger"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]CheckFunc
	log    logger.Logger
}

// NewHealthHandler creates a health handler over the given dependency
// probes.
func NewHealthHandler(checks map[string]CheckFunc, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		log:    log.WithComponent("handlers.health"),
	}
}

// HealthCheck 健康检查
// GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	results := h.performChecks(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	for _, result := range results {
		if result != "ok" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   constants.Version,
		"timestamp": time.Now().UTC(),
		"checks":    results,
	})
}

// ReadinessCheck 就绪检查
// GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	h.HealthCheck(c)
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	results := make(map[string]string, len(h.checks))
	mu := &sync.Mutex{}
	var wg sync.WaitGroup

	wg.Add(len(h.checks))
	for name, check := range h.checks {
		go func(name string, check CheckFunc) {
			defer wg.Done()
			status := "ok"
			if err := check(ctx); err != nil {
				status = "error: " + err.Error()
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return results
}
