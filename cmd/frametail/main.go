// frametail connects to the realtime channel and prints every routed frame.
// Usage: go run ./cmd/frametail --config configs/realtime.example.yaml
//
// The token comes from api.token, api.token_file or PATIENT_API_TOKEN.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/auth"
	"github.com/mariankugiel/patient-realtime/internal/config"
	"github.com/mariankugiel/patient-realtime/internal/connection"
	"github.com/mariankugiel/patient-realtime/internal/protocol"
	"github.com/mariankugiel/patient-realtime/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/realtime.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenFile)
	if err != nil {
		logger.Error("credentials required for the realtime channel", "error", err)
		logger.Info("Set api.token, api.token_file or " + auth.TokenEnv)
		os.Exit(1)
	}
	logger.Info("using token", "token", auth.Redact(creds.Token()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	connCfg := connection.ManagerConfig{
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ReconnectInterval:    cfg.Connection.ReconnectInterval,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		HandshakeTimeout:     cfg.Connection.HandshakeTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		BufferSize:           cfg.Connection.BufferSize,
	}
	connMgr := connection.NewManager(connCfg, logger)

	// Frames are printed off the read goroutine.
	frames := queue.New[protocol.Frame](1024)
	connMgr.OnMessage(func(f protocol.Frame) { frames.Push(f) })
	connMgr.OnDisconnect(func(ev connection.DisconnectEvent) {
		logger.Warn("channel closed", "state", ev.State, "attempts", ev.Attempts, "error", ev.Err)
		if ev.State == connection.Failed {
			cancel()
		}
	})

	go printFrames(frames, *verbose)

	logger.Info("connecting", "url", cfg.API.WSURL)
	if err := connMgr.Connect(cfg.API.WSURL, creds.Token()); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := connMgr.Stats()
				logger.Info("stats",
					"state", s.State,
					"connection_id", s.ConnectionID,
					"frames_received", s.FramesReceived,
					"frames_routed", s.FramesRouted,
					"parse_errors", s.ParseErrors,
					"heartbeats", s.HeartbeatsSent,
					"last_pong", s.LastPong,
					"queued", frames.Len(),
				)
			}
		}
	}()

	logger.Info("tailing frames - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	connMgr.Close(shutdownCtx)
	frames.Close()

	logger.Info("shutdown complete")
}

func printFrames(frames *queue.Buffer[protocol.Frame], verbose bool) {
	for {
		f, ok := frames.Pop()
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(f, "", "  ")
			fmt.Printf("[%s] %s\n", f.Type, data)
			continue
		}

		switch f.Type {
		case protocol.TypeNotification, protocol.TypeMedicationReminder:
			if n, err := protocol.DecodeNotification(f); err == nil {
				fmt.Printf("[%s] id=%d title=%q status=%s\n", f.Type, n.ID, n.Title, n.Status)
				continue
			}
		case protocol.TypeUserStatusChange:
			if ev, err := protocol.DecodePresence(f); err == nil {
				fmt.Printf("[%s] user=%d status=%s\n", f.Type, ev.UserID, ev.Status)
				continue
			}
		case protocol.TypeNewMessage:
			if m, err := protocol.DecodeChatMessage(f); err == nil {
				fmt.Printf("[%s] from=%d content=%q\n", f.Type, m.SenderID, m.Content)
				continue
			}
		}
		fmt.Printf("[%s] %s\n", f.Type, f.Data)
	}
}
