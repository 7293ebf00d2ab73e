// Package app assembles the HTTP server: configuration, logging,
// services, middleware chain and routes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"flowforge/internal/config"
	"flowforge/internal/fuzzy"
	"flowforge/internal/middleware"
	"flowforge/internal/services"
	"flowforge/internal/transform"
	transporthttp "flowforge/internal/transport/http"
	"flowforge/internal/websocket"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Application holds the assembled server and its collaborators.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router chi.Router
	Server *http.Server

	ETLService *services.ETLService
	Hub        *websocket.Hub
}

// New loads configuration and wires the application together.
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	hub := websocket.NewHub(logger)
	registry := transform.NewRegistry()

	matchOpts := fuzzy.Options{
		Threshold:      cfg.Engine.SimilarityThreshold,
		MaxResults:     cfg.Engine.MaxSuggestions,
		ParallelCutoff: cfg.Engine.ParallelCutoff,
	}
	etl := services.NewETLService(registry, matchOpts, hub, logger)

	a := &Application{
		Config:     cfg,
		Logger:     logger,
		ETLService: etl,
		Hub:        hub,
	}
	a.setupRouter()
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return a, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer(a.Logger))
	r.Use(middleware.StructuredLogger(a.Logger))
	r.Use(middleware.Compress(5))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	if rl := a.Config.Security.RateLimit; rl.Enabled {
		limiter := middleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger)
		r.Use(limiter.Handler)
	}

	etlHandler := transporthttp.NewETLHandler(
		a.ETLService,
		a.Config.Server.MaxUploadBytes,
		a.Config.Engine.MinFrequencyRatio,
		a.Logger,
	)
	healthHandler := transporthttp.NewHealthHandler(Version, a.ETLService.SessionCount)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Mount("/sessions", etlHandler.Routes())
	})

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWS(a.Hub, w, req)
	})

	// Static UI, when present.
	if info, err := os.Stat(a.Config.Server.WebDir); err == nil && info.IsDir() {
		fileServer := http.FileServer(http.Dir(a.Config.Server.WebDir))
		r.Handle("/*", fileServer)
	}

	a.Router = r
}

// Start launches the hub and the HTTP server. It returns immediately;
// server errors cancel the supplied context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Hub.Start()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully shuts the server and hub down.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	a.Hub.Stop()

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
