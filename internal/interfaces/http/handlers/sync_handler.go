package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/didagent/internal/application"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// SyncHandler exposes manual control over the sync engine.
type SyncHandler struct {
	engine *application.SyncEngine
	log    logger.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(engine *application.SyncEngine, log logger.Logger) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		log:    log.WithComponent("handlers.sync"),
	}
}

// Run 触发一轮同步
// POST /api/v1/sync/run
func (h *SyncHandler) Run(c *gin.Context) {
	start := time.Now()
	if err := h.engine.Sync(c.Request.Context()); err != nil {
		h.log.Warn(c.Request.Context(), "Manual sync cycle failed",
			logger.String("error_code", string(errors.CodeOf(err))),
			logger.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "completed",
		"duration": time.Since(start).String(),
	})
}

// Status 查询同步状态
// GET /api/v1/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.engine.Status(c.Request.Context())
	if err != nil {
		h.log.Warn(c.Request.Context(), "Sync status query failed", logger.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
