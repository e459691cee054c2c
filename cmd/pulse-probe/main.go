// Command pulse-probe connects to an audio daemon, holds the session open,
// and serves health/metrics endpoints describing its lifecycle state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brindlecove/pulseclient/internal/config"
	"github.com/brindlecove/pulseclient/internal/health"
	"github.com/brindlecove/pulseclient/internal/observe"
	"github.com/brindlecove/pulseclient/internal/reconnect"
	"github.com/brindlecove/pulseclient/pkg/pulse"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	server := flag.String("server", "", "override server.address from the config file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pulse-probe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pulse-probe: %v\n", err)
		}
		return 1
	}
	if *server != "" {
		cfg.Server.Address = *server
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("pulse-probe starting",
		"config", *configPath,
		"server", cfg.Server.Address,
		"client_name", cfg.Server.ClientName,
	)

	// ── Observability ─────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Observe.ServiceName,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics provider shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Session ───────────────────────────────────────────────────────────
	dialer := reconnect.Dialer{
		Server:     cfg.Server.Address,
		Name:       cfg.Server.ClientName,
		CookiePath: cfg.Server.CookiePath,
	}

	var conn *pulse.Context
	var recon *reconnect.Reconnector
	if cfg.Reconnect.Enabled {
		recon = reconnect.NewReconnector(reconnect.ReconnectorConfig{
			Connector:  dialer,
			MaxRetries: cfg.Reconnect.MaxRetries,
			Backoff:    cfg.Reconnect.Backoff,
			MaxBackoff: cfg.Reconnect.MaxBackoff,
			OnReconnect: func(c *pulse.Context) {
				metrics.RecordReconnectAttempt(ctx, "success")
				watchTransitions(ctx, c, metrics, recon)
			},
		})
		conn, err = recon.Connect(ctx)
	} else {
		conn, err = dialer.Connect(ctx)
	}
	if err != nil {
		slog.Error("failed to establish session", "err", err)
		return 1
	}
	watchTransitions(ctx, conn, metrics, recon)
	if recon != nil {
		recon.Monitor(ctx)
	}

	slog.Info("session ready", "name", conn.Name())

	// ── HTTP server (health + metrics) ───────────────────────────────────
	var httpServer *http.Server
	if cfg.Observe.MetricsAddr != "" {
		mux := http.NewServeMux()
		hh := health.New(health.SessionChecker("pulse-session", conn))
		hh.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		httpServer = &http.Server{Addr: cfg.Observe.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("serving health/metrics", "addr", cfg.Observe.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping…")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if recon != nil {
		recon.Stop()
	} else {
		conn.Disconnect()
	}

	slog.Info("goodbye")
	return 0
}

// watchTransitions installs a state callback on conn that records a
// transition metric and, when reconnection is configured, notifies the
// reconnector on Failed so it can pick up a fresh session.
func watchTransitions(_ context.Context, conn *pulse.Context, metrics *observe.Metrics, recon *reconnect.Reconnector) {
	prev := conn.State()
	conn.SetStateCallback(func(c *pulse.Context, state pulse.State) {
		metrics.RecordTransition(context.Background(), prev.String(), state.String())
		prev = state
		if state == pulse.Failed {
			metrics.RecordProtocolError(context.Background(), c.Errno().Error())
			if recon != nil {
				recon.NotifyDisconnect()
			}
		}
	})
}

// ── Logger ───────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
