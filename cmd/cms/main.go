package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/app"
	"github.com/hanko-field/cms/internal/handlers"
	"github.com/hanko-field/cms/internal/overlay"
	"github.com/hanko-field/cms/internal/platform/config"
	"github.com/hanko-field/cms/internal/platform/events"
	"github.com/hanko-field/cms/internal/platform/metrics"
	"github.com/hanko-field/cms/internal/platform/observability"
	"github.com/hanko-field/cms/internal/preview"
	"github.com/hanko-field/cms/internal/repositories"
	"github.com/hanko-field/cms/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("cms")

	cfg, fetcher, err := app.LoadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	locales, err := app.Locales(cfg)
	if err != nil {
		logger.Fatal("invalid locale configuration", zap.Error(err))
	}

	registry, err := app.OpenRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open content store", zap.Error(err), zap.String("backend", cfg.Store.Backend))
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	m := metrics.New()

	checks := []repositories.DependencyCheck{{
		Name:    "store",
		Timeout: cfg.Store.HealthTimeout,
		Check:   registry.Ping,
	}}

	var ledger overlay.Ledger
	if cfg.Overlays.DismissalStore == config.DismissalStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		redisLedger, err := overlay.NewRedisLedger(client)
		if err != nil {
			logger.Fatal("failed to initialise dismissal ledger", zap.Error(err))
		}
		ledger = redisLedger
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: cfg.Store.HealthTimeout,
			Check:   redisLedger.Ping,
		})
	}

	contentService, err := services.NewContentService(services.ContentServiceDeps{
		Repository:    registry.Content(),
		Locales:       locales,
		Logger:        logger,
		Metrics:       m,
		WriteAttempts: cfg.Content.WriteAttempts,
		RetryBackoff:  cfg.Content.WriteRetryBackoff,
	})
	if err != nil {
		logger.Fatal("failed to initialise content service", zap.Error(err))
	}

	overlayService, err := services.NewOverlayService(services.OverlayServiceDeps{
		Repository: registry.Overlays(),
		Locales:    locales,
		Ledger:     ledger,
		ModalDelay: cfg.Overlays.ModalDelay,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		logger.Fatal("failed to initialise overlay service", zap.Error(err))
	}

	adminOpts := []handlers.AdminContentOption{}
	if projectID := strings.TrimSpace(cfg.Events.ProjectID); projectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := events.NewPubSubPublisher(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			logger.Fatal("failed to initialise content event publisher", zap.Error(err))
		}
		defer publisher.Stop()
		adminOpts = append(adminOpts, handlers.WithContentEventPublisher(publisher))
		logger.Info("content change events enabled", zap.String("topic", cfg.Events.Topic))
	}

	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(cfg.Store.HealthTimeout))
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	hub := preview.NewHub(
		preview.WithAllowedOrigins(cfg.Preview.AllowedOrigins...),
		preview.WithHubLogger(logger.Named("preview")),
		preview.WithHubMetrics(m),
	)
	defer hub.Close()

	secureCookies := cfg.Server.Environment != "local"
	contentHandlers := handlers.NewContentHandlers(contentService, locales)
	overlayHandlers := handlers.NewOverlayHandlers(overlayService, locales,
		handlers.WithSecureCookies(secureCookies),
		handlers.WithVisitorTracking(ledger != nil),
		handlers.WithVisitorCookie(cfg.Overlays.VisitorCookie),
	)
	adminHandlers := handlers.NewAdminContentHandlers(contentService, adminOpts...)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthReporter(health),
		handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(cfg.Observability.ProjectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(m),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(m.Handler()),
		handlers.WithContentRoutes(contentHandlers.Routes),
		handlers.WithOverlayRoutes(overlayHandlers.Routes),
		handlers.WithPreviewRoutes(handlers.PreviewRoutes(hub)),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(handlers.RequireSession(cfg.Admin.SessionCookie)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("cms listening",
			zap.String("backend", cfg.Store.Backend),
			zap.Strings("locales", locales.Codes()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("CMS_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("CMS_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Server.Environment,
		StartedAt:   started,
	}
}
