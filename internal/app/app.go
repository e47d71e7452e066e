// Package app wires the configured backend client, session store and
// exporters into a core.Service. Both binaries build their session here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/prepflow/internal/backend"
	"github.com/JonMunkholm/prepflow/internal/config"
	"github.com/JonMunkholm/prepflow/internal/core"
	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/session"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// App is a ready session service plus the resources it holds.
type App struct {
	Service *core.Service
	Client  *backend.Client
	Session *session.Opened
}

// Options adjusts what New builds.
type Options struct {
	// Observer receives job lifecycle events. Optional.
	Observer job.Observer
	// Logger is passed to the orchestrator. Optional.
	Logger *slog.Logger
	// ExportDir overrides cfg.Table.ExportDir when not empty.
	ExportDir string
}

// New connects the backend client and session store described by cfg and
// creates the service. Call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	client, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	opened, err := session.Open(ctx, session.Options{
		Backend:         cfg.Session.Backend,
		RedisURL:        cfg.Session.RedisURL,
		KeyPrefix:       cfg.Session.KeyPrefix,
		DatabaseURL:     cfg.Session.DatabaseURL,
		MaxConns:        cfg.Session.MaxConns,
		MinConns:        cfg.Session.MinConns,
		MaxConnLifetime: cfg.Session.MaxConnLifetime,
		MaxConnIdleTime: cfg.Session.MaxConnIdleTime,
		Version:         cfg.Session.Version,
		MaxAge:          cfg.Session.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	svc := core.NewService(core.Options{
		Backend:      client,
		Store:        opened.Store,
		SessionKey:   cfg.Session.Key,
		PageSize:     cfg.Table.PageSize,
		AutoFill:     cfg.Job.AutoFill,
		Exporter:     Exporter(client, cfg, opts.ExportDir),
		NewPersister: client.Persister,
		Job: job.Options{
			PollInterval:      cfg.Job.PollInterval,
			AnimationDuration: cfg.Job.AnimationDuration,
			AnimationFrame:    cfg.Job.AnimationFrame,
			ElapsedTick:       cfg.Job.ElapsedTick,
			Observer:          opts.Observer,
			Logger:            opts.Logger,
		},
	})

	return &App{Service: svc, Client: client, Session: opened}, nil
}

// Exporter picks the CSV export target: a directory when one is configured,
// otherwise the backend's download endpoint.
func Exporter(client *backend.Client, cfg *config.Config, dir string) table.Exporter {
	if dir == "" {
		dir = cfg.Table.ExportDir
	}
	if dir != "" {
		return table.FileExporter{Dir: dir}
	}
	return client.Exporter()
}

// PurgeConfig returns the purge schedule for the session store.
func PurgeConfig(cfg *config.Config) session.PurgeConfig {
	return session.PurgeConfig{
		MaxAge:   cfg.Session.MaxAge,
		Interval: cfg.Session.PurgeInterval,
	}
}

// Close stops the service and releases the session store.
func (a *App) Close() {
	a.Service.Close()
	a.Session.Close()
}
