package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/dto"
	"github.com/octobees/prospect-bridge/internal/middleware"
	"github.com/octobees/prospect-bridge/internal/service"
)

// DefaultMaxWebhookBody caps inbound webhook bodies at 1 MiB.
const DefaultMaxWebhookBody int64 = 1 << 20

// WebhookIntake schedules prospects from raw webhook bodies.
type WebhookIntake interface {
	Accept(ctx context.Context, raw []byte) (service.IntakeResult, error)
}

// WebhookHandler receives inbound lead notifications.
type WebhookHandler struct {
	intake  WebhookIntake
	logger  *zap.Logger
	maxBody int64
}

// NewWebhookHandler creates a new handler instance.
func NewWebhookHandler(intake WebhookIntake, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{intake: intake, logger: logger, maxBody: DefaultMaxWebhookBody}
}

// Receive handles POST /webhook and /webhook/heyreach.
func (h *WebhookHandler) Receive(c echo.Context) error {
	logger := middleware.LoggerFromContext(c, h.logger)

	raw, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, h.maxBody))
	if err != nil {
		middleware.RecordWebhookOutcome("rejected")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
			return Error(c, http.StatusRequestEntityTooLarge, "request body too large")
		}
		return Error(c, http.StatusBadRequest, "could not read request body")
	}

	res, err := h.intake.Accept(c.Request().Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPayload):
			middleware.RecordWebhookOutcome("rejected")
			return Error(c, http.StatusBadRequest, "invalid JSON payload")
		case errors.Is(err, service.ErrUnresolvableIdentity):
			logger.Warn("webhook rejected, missing prospect email")
			middleware.RecordWebhookOutcome("rejected")
			return Error(c, http.StatusBadRequest, "Missing prospect email")
		default:
			logger.Error("failed to store prospect", zap.Error(err))
			middleware.RecordWebhookOutcome("error")
			return Error(c, http.StatusInternalServerError, "failed to store prospect")
		}
	}

	if res.Duplicate {
		middleware.RecordWebhookOutcome("duplicate")
		return JSON(c, http.StatusOK, dto.WebhookSkippedResponse{Accepted: false, Reason: "duplicate"})
	}

	middleware.RecordWebhookOutcome("accepted")
	return JSON(c, http.StatusOK, dto.WebhookAcceptedResponse{
		Accepted:   true,
		SendAt:     res.SendAt,
		CampaignID: res.CampaignID,
		Company:    res.Company,
	})
}
