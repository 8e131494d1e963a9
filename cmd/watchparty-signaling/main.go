package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/watchparty/signaling-relay/internal/config"
	"github.com/watchparty/signaling-relay/internal/httpserver"
	"github.com/watchparty/signaling-relay/internal/icecred"
	"github.com/watchparty/signaling-relay/internal/metrics"
	"github.com/watchparty/signaling-relay/internal/room"
	"github.com/watchparty/signaling-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting watchparty-signaling",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"static_dir", cfg.StaticDir,
		"ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"ws_ping_interval", cfg.SignalingWSPingInterval,
		"max_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
		"turn_provider_enabled", cfg.TURNProvider.Enabled(),
	)
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("no allowed origins configured; only same-host browser clients can connect")
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	state := room.NewState(room.Config{})
	m := metrics.New()

	var provider *icecred.Provider
	if cfg.TURNProvider.Enabled() {
		provider = icecred.NewProvider(cfg.TURNProvider.URL, cfg.TURNProvider.APIKey, cfg.TURNProvider.Timeout)
	}
	ice := icecred.New(icecred.Config{
		STUNURLs:               cfg.STUNURLs,
		Static:                 cfg.ICEServers,
		TURNURLs:               cfg.TURNURLs,
		TURNUsername:           cfg.TURNUsername,
		TURNCredential:         cfg.TURNCredential,
		TURNRESTSecret:         cfg.TURNREST.SharedSecret,
		TURNRESTTTL:            time.Duration(cfg.TURNREST.TTLSeconds) * time.Second,
		TURNRESTUsernamePrefix: cfg.TURNREST.UsernamePrefix,
		Provider:               provider,
		Logger:                 logger,
	})

	srv := httpserver.New(cfg, logger, resolveBuildInfo(buildCommit, buildTime), state, ice, m)

	sig := signaling.NewServer(signaling.Config{
		State:   state,
		Metrics: m,
		Logger:  logger,

		AllowedOrigins:       cfg.AllowedOrigins,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
	})
	srv.Mux().Handle("GET /ws", sig)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	sig.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) httpserver.BuildInfo {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return httpserver.BuildInfo{Commit: commit, BuildTime: buildTime}
}
