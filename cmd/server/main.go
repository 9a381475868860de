// SHSH - Practice Panel Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/shsh-practice/internal/api"
	"github.com/ashureev/shsh-practice/internal/backend"
	"github.com/ashureev/shsh-practice/internal/clock"
	"github.com/ashureev/shsh-practice/internal/config"
	"github.com/ashureev/shsh-practice/internal/healthcheck"
	"github.com/ashureev/shsh-practice/internal/identity"
	"github.com/ashureev/shsh-practice/internal/live"
	"github.com/ashureev/shsh-practice/internal/middleware"
	"github.com/ashureev/shsh-practice/internal/ratelimit"
	"github.com/ashureev/shsh-practice/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_health_port", cfg.GRPCHealthPort, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	platform, err := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	})
	if err != nil {
		slog.Error("Failed to initialize platform API client", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.Submit.RateLimit, cfg.Submit.RateWindow)
	defer limiter.Stop()

	// Initialize services.
	sm := live.NewSessionManager()
	sys := clock.NewSystem()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sm, cfg)
	practiceHandler := api.NewPracticeHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)
	wsHandler := live.NewWebSocketHandler(live.HandlerConfig{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		TickInterval:  cfg.Timer.TickInterval,
		PageSize:      cfg.History.PageSize,
	}, live.HandlerDeps{
		Clock:     sys,
		Scheduler: sys,
		Upstream: func(token string) live.Upstream {
			return platform.WithToken(token)
		},
		Journal: repo,
		Limiter: limiter,
	}, sm)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(identity.NewVerifier(cfg.JWTSecret)))
		practiceHandler.RegisterRoutes(r)
		r.Get("/ws/practice", wsHandler.ServeHTTP)
	})

	// WebSocket views are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start retention worker.
	store.StartRetentionWorker(ctx, repo, cfg.Journal.Retention, cfg.Journal.SweepInterval)
	slog.Info("Retention worker started", "retention", cfg.Journal.Retention)

	// Start gRPC health service.
	healthSrv := healthcheck.New()
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC health", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := healthSrv.Serve(grpcLis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Serving first, so a failed ping from the watch is never overwritten.
	healthSrv.SetServing(true)
	healthSrv.Watch(ctx, repo, cfg.Health.WatchInterval)

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	healthSrv.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	healthSrv.Shutdown()

	slog.Info("Server stopped successfully")
}
