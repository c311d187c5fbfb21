package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/octobees/prospect-bridge/internal/config"
	"github.com/octobees/prospect-bridge/internal/handler"
	middlewarepkg "github.com/octobees/prospect-bridge/internal/middleware"
)

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Webhook   *handler.WebhookHandler
	Directory *handler.DirectoryHandler
	Status    *handler.StatusHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, handlers Handlers) {
	e.GET("/health", handlers.Status.Health)
	e.GET("/status", handlers.Status.Status)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	webhookLimit := middlewarepkg.RateLimiter(cfg.RateLimitWebhook, "webhook rate limit exceeded")
	e.POST("/webhook/heyreach", handlers.Webhook.Receive, webhookLimit)
	e.POST("/webhook", handlers.Webhook.Receive, webhookLimit)

	if handlers.Directory != nil {
		e.POST("/leads/load", handlers.Directory.LoadLeads)
		e.POST("/routing/load", handlers.Directory.LoadRouting)
		e.GET("/routing/stats", handlers.Directory.ProfileStats)
	}
}
