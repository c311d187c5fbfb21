package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/dto"
	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/middleware"
)

// QueueStatus reports prospect totals per status.
type QueueStatus interface {
	StatusCounts(ctx context.Context) (entity.StatusCounts, error)
}

// StatusHandler serves liveness and queue status.
type StatusHandler struct {
	queue   QueueStatus
	started time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// NewStatusHandler creates a new handler instance; uptime counts from started.
func NewStatusHandler(queue QueueStatus, started time.Time, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{queue: queue, started: started, now: time.Now, logger: logger}
}

// Health handles GET /health.
func (h *StatusHandler) Health(c echo.Context) error {
	return JSON(c, http.StatusOK, dto.HealthResponse{
		Status: "ok",
		Uptime: h.now().Sub(h.started).Seconds(),
	})
}

// Status handles GET /status.
func (h *StatusHandler) Status(c echo.Context) error {
	counts, err := h.queue.StatusCounts(c.Request().Context())
	if err != nil {
		middleware.LoggerFromContext(c, h.logger).Error("status counts failed", zap.Error(err))
		return Error(c, http.StatusInternalServerError, "failed to load status")
	}
	return JSON(c, http.StatusOK, counts)
}
