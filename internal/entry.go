// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/observe"
	"github.com/starford/ansuz/internal/openai"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("model", cfg.LLM.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize the workspace store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// MCP mode serves stdio and never opens a port.
	if app.mcpMode {
		logger.Info("Starting MCP server on stdio", slog.String("user", cfg.App.DefaultUser))
		return mcpserver.New(db, cfg.App.DefaultUser).ServeStdio()
	}

	// SSE broker; mutations fan out through the eventing decorator.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	ws := store.WithEvents(db, broker)

	// Persona table with optional YAML overlay.
	personas, err := agent.NewPersonaTable(cfg.Personas.Path)
	if err != nil {
		return fmt.Errorf("init personas: %w", err)
	}

	// Model provider client, overridable for tests.
	llmClient := app.llmClient
	if llmClient == nil {
		llmClient = openai.NewClient(cfg.LLM.BaseURL)
	}

	loop := agent.NewLoop(llmClient, ws, personas, agent.Config{
		Model:         cfg.LLM.Model,
		APIKey:        cfg.LLM.APIKey,
		MaxIterations: cfg.LLM.MaxIterations,
		HistoryWindow: cfg.Agent.HistoryWindow,
		Thresholds:    cfg.Agent.Thresholds(),
	}, logger)

	sessions := session.NewManager()

	journal, err := observe.New(cfg.Journal.Path, logger)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}

	// Build API handler and router.
	h := api.NewHandler(ws, loop, sessions, journal, cfg.App.DefaultUser)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload personas on file change.
	g.Go(func() error {
		return personas.Watch(gCtx, logger)
	})

	// Observation journal writer.
	g.Go(func() error {
		return journal.Run(gCtx)
	})

	// Drop idle sessions.
	g.Go(func() error {
		sessions.PurgeLoop(gCtx, 5*time.Minute)
		return nil
	})

	// Purge trash past retention.
	if cfg.Trash.RetentionDays > 0 {
		retention := time.Duration(cfg.Trash.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			t := time.NewTicker(time.Hour)
			defer t.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-t.C:
					n, err := db.PurgeTrash(time.Now().Add(-retention))
					if err != nil {
						logger.Warn("trash purge failed", slog.String("error", err.Error()))
					} else if n > 0 {
						logger.Info("trash purged", slog.Int("items", n))
					}
				}
			}
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
