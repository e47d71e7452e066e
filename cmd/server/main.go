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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/prepflow/internal/app"
	"github.com/JonMunkholm/prepflow/internal/config"
	"github.com/JonMunkholm/prepflow/internal/logging"
	"github.com/JonMunkholm/prepflow/internal/metrics"
	"github.com/JonMunkholm/prepflow/internal/session"
	"github.com/JonMunkholm/prepflow/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	a, err := app.New(ctx, cfg, app.Options{Observer: collector, Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	restoreCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	found, err := a.Service.Restore(restoreCtx)
	cancel()
	switch {
	case err != nil:
		slog.Warn("session not restored", "error", err)
	case found:
		slog.Info("session restored", "dataset", a.Service.Dataset())
	}

	server := web.NewServer(a.Service, cfg, collector)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Server.Addr(), "backend", a.Client.BaseURL(), "session", cfg.Session.Backend)
		if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.Session.Purger != nil {
		g.Go(func() error {
			return session.RunPurgeScheduler(gctx, a.Session.Purger, app.PurgeConfig(cfg))
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
