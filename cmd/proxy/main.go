// Agentforce WebSocket proxy server.
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

	"github.com/ashureev/agentbridge/internal/agentforce"
	"github.com/ashureev/agentbridge/internal/api"
	"github.com/ashureev/agentbridge/internal/config"
	"github.com/ashureev/agentbridge/internal/middleware"
	"github.com/ashureev/agentbridge/internal/proxy"
	"github.com/ashureev/agentbridge/internal/transcript"
	"github.com/ashureev/agentbridge/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	slog.Info("Starting proxy", "port", cfg.Port, "instance", cfg.InstanceURL, "dev", cfg.IsDevelopment())

	// One vendor client per connection: each socket authenticates and owns
	// its own vendor session.
	newClient := func() (proxy.AgentClient, error) {
		client, err := agentforce.NewClient(agentforce.Config{
			InstanceURL:  cfg.InstanceURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			AgentID:      cfg.AgentID,
			APIBase:      cfg.APIBase,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	var recorder transcript.Repository
	if cfg.TranscriptEnabled {
		recorder, err = transcript.NewMemory()
		if err != nil {
			slog.Error("Failed to initialize transcript store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := recorder.Close(); closeErr != nil {
				slog.Error("Failed to close transcript store", "error", closeErr)
			}
		}()
		slog.Info("Transcript store ready")
	}

	wsHandler := proxy.NewServer(newClient, recorder, logger)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	if recorder != nil {
		api.NewTranscriptHandler(recorder).RegisterRoutes(r)
	}

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Serve the embedded chat widget.
	r.Handle("/*", web.Handler())

	// WriteTimeout stays zero: WebSocket connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Proxy listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Proxy stopped successfully")
}
