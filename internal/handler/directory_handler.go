package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/dto"
	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/middleware"
)

// Directory loads and reports on the routing and lead directories.
type Directory interface {
	LoadLeads(ctx context.Context, items []entity.Lead) (int, error)
	LoadRouting(ctx context.Context, items []entity.RoutingEntry) (int, error)
	ProfileStats(ctx context.Context) ([]entity.ProfileStats, error)
}

// DirectoryHandler exposes bulk loads and routing statistics.
type DirectoryHandler struct {
	directory Directory
	logger    *zap.Logger
}

// NewDirectoryHandler creates a new handler instance.
func NewDirectoryHandler(directory Directory, logger *zap.Logger) *DirectoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryHandler{directory: directory, logger: logger}
}

// LoadLeads handles POST /leads/load.
func (h *DirectoryHandler) LoadLeads(c echo.Context) error {
	var req dto.LoadLeadsRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request payload")
	}

	leads := make([]entity.Lead, 0, len(req.Items))
	for _, item := range req.Items {
		leads = append(leads, item.ToEntity())
	}

	loaded, err := h.directory.LoadLeads(c.Request().Context(), leads)
	if err != nil {
		middleware.LoggerFromContext(c, h.logger).Error("lead load failed", zap.Error(err))
		return Error(c, http.StatusInternalServerError, "failed to load leads")
	}
	return JSON(c, http.StatusOK, dto.LoadResponse{Loaded: loaded})
}

// LoadRouting handles POST /routing/load.
func (h *DirectoryHandler) LoadRouting(c echo.Context) error {
	var req dto.LoadRoutingRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid request payload")
	}

	entries := make([]entity.RoutingEntry, 0, len(req.Items))
	for _, item := range req.Items {
		entries = append(entries, item.ToEntity())
	}

	loaded, err := h.directory.LoadRouting(c.Request().Context(), entries)
	if err != nil {
		middleware.LoggerFromContext(c, h.logger).Error("routing load failed", zap.Error(err))
		return Error(c, http.StatusInternalServerError, "failed to load routing")
	}
	return JSON(c, http.StatusOK, dto.LoadResponse{Loaded: loaded})
}

// ProfileStats handles GET /routing/stats.
func (h *DirectoryHandler) ProfileStats(c echo.Context) error {
	stats, err := h.directory.ProfileStats(c.Request().Context())
	if err != nil {
		middleware.LoggerFromContext(c, h.logger).Error("routing stats failed", zap.Error(err))
		return Error(c, http.StatusInternalServerError, "failed to load routing stats")
	}
	return JSON(c, http.StatusOK, dto.ProfileStatsResponse{Profiles: stats})
}
