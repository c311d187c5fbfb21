package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/octobees/prospect-bridge/internal/config"
	"github.com/octobees/prospect-bridge/internal/database"
	"github.com/octobees/prospect-bridge/internal/handler"
	"github.com/octobees/prospect-bridge/internal/logging"
	"github.com/octobees/prospect-bridge/internal/mailshake"
	middlewarepkg "github.com/octobees/prospect-bridge/internal/middleware"
	"github.com/octobees/prospect-bridge/internal/repository"
	"github.com/octobees/prospect-bridge/internal/router"
	"github.com/octobees/prospect-bridge/internal/service"
	"github.com/octobees/prospect-bridge/internal/worker"
)

func main() {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	if cfg.Mailshake.APIKey == "" {
		logger.Warn("MAILSHAKE_API_KEY is not set, deliveries will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := database.Connect(connectCtx, cfg.DatabaseURL, database.PoolSettings{
		MaxConns:        int32(cfg.DatabasePool.MaxConns),
		MinConns:        int32(cfg.DatabasePool.MinConns),
		MaxConnLifetime: cfg.DatabasePool.MaxConnLifetime,
		MaxConnIdleTime: cfg.DatabasePool.MaxConnIdleTime,
	})
	if err != nil {
		cancel()
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	err = database.Migrate(connectCtx, pool, logger)
	cancel()
	if err != nil {
		pool.Close()
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}
	defer pool.Close()

	prospectsRepo := repository.NewPGXProspectsRepository(pool)
	routingRepo := repository.NewPGXRoutingRepository(pool)
	leadsRepo := repository.NewPGXLeadsRepository(pool)

	campaigns := service.NewCampaignTable(cfg.ProfileCampaigns)
	identity := service.NewIdentityResolver(leadsRepo, cfg.PhoneRegion, logger)
	routing := service.NewRoutingResolver(routingRepo, campaigns)
	intake := service.NewIntakeService(identity, routing, prospectsRepo, cfg.Delay, logger)
	directory := service.NewDirectoryService(leadsRepo, routingRepo, prospectsRepo, cfg.PhoneRegion, logger)

	clientOpts := []mailshake.Option{
		mailshake.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
		mailshake.WithPolling(cfg.Mailshake.PollAttempts, cfg.Mailshake.PollInterval),
		mailshake.WithLogger(logger.Named("mailshake")),
	}
	if cfg.Mailshake.RateLimit.Enabled() {
		clientOpts = append(clientOpts, mailshake.WithRateLimit(cfg.Mailshake.RateLimit.Requests, cfg.Mailshake.RateLimit.Interval))
	}
	client := mailshake.NewClient(cfg.Mailshake.APIKey, cfg.Mailshake.BaseURL, clientOpts...)

	dispatcher := worker.NewDispatcher(prospectsRepo, client, cfg.Mailshake.DefaultCampaignID, cfg.MaxAttempts, logger.Named("dispatch"))
	scheduler, err := worker.NewScheduler(dispatcher, cfg.DispatchSchedule, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID(logger))
	e.Use(middlewarepkg.Logging(logger))
	e.Use(middlewarepkg.Metrics())
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, router.Handlers{
		Webhook:   handler.NewWebhookHandler(intake, logger),
		Directory: handler.NewDirectoryHandler(directory, logger),
		Status:    handler.NewStatusHandler(directory, started, logger),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		validateCampaigns(gctx, client, cfg.Mailshake.DefaultCampaignID, campaigns, logger)
		return nil
	})

	scheduler.Start()
	logger.Info("dispatch scheduled",
		zap.String("schedule", cfg.DispatchSchedule),
		zap.Duration("delay", cfg.Delay),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int("profile_campaigns", campaigns.Len()),
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("dispatch tick still running at shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

// validateCampaigns checks the API key and configured campaigns once at
// startup. Failures are logged; the service keeps running.
func validateCampaigns(ctx context.Context, client *mailshake.Client, defaultCampaign string, table *service.CampaignTable, logger *zap.Logger) {
	ids := table.CampaignIDs()
	if defaultCampaign != "" {
		ids = append(ids, defaultCampaign)
	}
	if len(ids) == 0 {
		logger.Warn("no campaigns configured, set MAILSHAKE_CAMPAIGN_ID or PROFILE_CAMPAIGNS")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	found, err := client.ValidateCampaigns(ctx, ids...)
	if err != nil {
		logger.Warn("campaign validation failed", zap.Error(err))
		return
	}
	logger.Info("campaigns validated", zap.Int("count", len(found)))
}
