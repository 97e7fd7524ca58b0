package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/api"
	"github.com/mariankugiel/patient-realtime/internal/auth"
	"github.com/mariankugiel/patient-realtime/internal/config"
	"github.com/mariankugiel/patient-realtime/internal/effects"
	"github.com/mariankugiel/patient-realtime/internal/metrics"
	"github.com/mariankugiel/patient-realtime/internal/model"
	"github.com/mariankugiel/patient-realtime/internal/session"
	"github.com/mariankugiel/patient-realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/realtime.example.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting realtime client",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"session_id", cfg.Session.ID,
	)

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenFile)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	logger.Info("credentials loaded", "token", auth.Redact(creds.Token()))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	apiClient := api.NewClient(
		cfg.API.RestURL,
		"",
		api.WithTokenSource(creds.Token),
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	var sess *session.Session
	sideEffects := []effects.Effect{
		&effects.Log{Logger: logger},
		&effects.Badge{
			Unread: func() int { return sess.Notifications().UnreadCount() },
			Report: func(n int) { logger.Info("badge", "unread", n) },
		},
	}
	if cfg.Notifications.Bell {
		sideEffects = append(sideEffects, &effects.Bell{W: os.Stdout})
	}
	if cfg.Notifications.WebhookURL != "" {
		sideEffects = append(sideEffects, &effects.Webhook{URL: cfg.Notifications.WebhookURL})
	}

	sess = session.New(session.ConfigFrom(cfg), creds, apiClient, logger, session.WithEffects(sideEffects...))

	sess.OnChat(func(m model.ChatMessage) {
		logger.Info("chat message",
			"id", m.ID,
			"sender_id", m.SenderID,
			"content", m.Content,
		)
	})
	sess.Presence().Subscribe(func(userID int64, status model.PresenceStatus) {
		logger.Debug("presence", "user_id", userID, "status", status)
	})

	// Start health server early so we can monitor the connection
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(sess, cfg.Metrics.Path),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	logger.Info("realtime client running",
		"ws_url", cfg.API.WSURL,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sess.Close(shutdownCtx); err != nil {
		logger.Warn("session shutdown incomplete", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("realtime client stopped")
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(sess *session.Session, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := sess.Snapshot()

		health := struct {
			Status  string           `json:"status"`
			Version version.Info     `json:"version"`
			Session session.Snapshot `json:"session"`
		}{
			Status:  healthStatus(snap),
			Version: version.Get(),
			Session: snap,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle(metricsPath, metrics.Handler())

	return mux
}

// healthStatus is healthy while connected, degraded while (re)connecting
// and unhealthy otherwise.
func healthStatus(snap session.Snapshot) string {
	if !snap.Authenticated {
		return "unhealthy"
	}
	switch snap.State {
	case "connected":
		return "healthy"
	case "connecting", "reconnecting":
		return "degraded"
	default:
		return "unhealthy"
	}
}
