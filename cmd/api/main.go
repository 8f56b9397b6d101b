package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http"
	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	wsAdapter "github.com/lorrc/service-desk-realtime/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/email"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/natsbus"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/config"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/core/services"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.ServiceName = cfg.App.Name
	logCfg.Environment = cfg.App.Environment
	logger := logging.NewLogger(logCfg)

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database Pool
	if cfg.Database.MigrationsPath != "" {
		applied, err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations checked", "applied", applied, "path", cfg.Database.MigrationsPath)
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connection established")

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	hub := stream.NewHub(cfg.Stream.QueueSize, logger)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	// Services publish to NATS when configured; the relay feeds the local hub.
	var (
		broadcaster ports.EventBroadcaster = hub
		busHealth   httpAdapter.HealthChecker
	)
	if cfg.Events.NATSURL != "" {
		bus, err := natsbus.Connect(natsbus.Config{
			URL:            cfg.Events.NATSURL,
			Subject:        cfg.Events.Subject,
			Name:           cfg.App.Name,
			ConnectTimeout: cfg.Events.ConnectTimeout,
		}, hub, logger)
		if err != nil {
			logger.Error("failed to connect to event bus", "error", err)
			os.Exit(1)
		}
		defer func() { _ = bus.Close() }()

		if err := bus.Start(ctx); err != nil {
			logger.Error("failed to start event relay", "error", err)
			os.Exit(1)
		}
		broadcaster = bus
		busHealth = bus
		logger.Info("event bus connected", "subject", cfg.Events.Subject)
	}
	broadcaster = email.NewRequesterMailer(broadcaster, logger)

	// 5. Initialize Rate Limiters
	var generalRateLimiter, actionRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			Key:               mw.ByIP,
		})
		defer generalRateLimiter.Close()
		actionRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.ActionRPS,
			BurstSize:         cfg.RateLimit.ActionBurst,
			TTL:               5 * time.Minute,
			Key:               mw.ByActor,
		})
		defer actionRateLimiter.Close()
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Repositories (Secondary Adapters)
	txManager := postgres.NewTransactionManager(pool)
	ticketRepo := postgres.NewTicketRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	cleanupLogRepo := postgres.NewCleanupLogRepository(pool)

	// Services (Core)
	ticketService := services.NewTicketService(ticketRepo, txManager, broadcaster, logger)
	notificationService := services.NewNotificationService(
		notificationRepo, cleanupLogRepo, txManager, broadcaster, cfg.Retention(), logger,
	)
	syncService := services.NewSyncService(ticketRepo, notificationRepo, broadcaster, logger)

	// Handlers (Primary Adapters)
	deps := httpAdapter.RouterDeps{
		Logger:         logger,
		TokenManager:   tokenManager,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		GeneralLimiter: generalRateLimiter,
		ActionLimiter:  actionRateLimiter,
		Health:         httpAdapter.NewHealthHandler(pool, busHealth, hub, cfg.App.Version),
		Me:             httpAdapter.NewMeHandler(logger),
		Stream:         httpAdapter.NewStreamHandler(hub, cfg.Stream.Heartbeat, errorHandler, logger),
		Sync:           httpAdapter.NewSyncHandler(syncService, errorHandler, logger),
		Tickets:        httpAdapter.NewTicketHandler(ticketService, errorHandler, logger),
		Notifications:  httpAdapter.NewNotificationHandler(notificationService, errorHandler, logger),
	}
	if cfg.WebSocket.Enabled {
		deps.WebSocket = httpAdapter.NewWebSocketHandler(hub, httpAdapter.WebSocketConfig{
			AllowedOrigins:  cfg.CORS.AllowedOrigins,
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			AllowAllOrigins: cfg.IsDevelopment(),
			Client: wsAdapter.Config{
				WriteWait: cfg.WebSocket.WriteWait,
				PongWait:  cfg.WebSocket.PongWait,
				Heartbeat: cfg.Stream.Heartbeat,
			},
		}, logger)
	}

	// 7. Setup Router
	router := httpAdapter.NewRouter(deps)

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stopping the hub closes every stream so Shutdown is not held open by them.
	stop()
	<-hubDone

	// Graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
