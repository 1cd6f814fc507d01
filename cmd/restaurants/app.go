package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mwsrestaurants/restaurant-sync/internal/logging"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/db"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/queue"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/reconcile"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/remote"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
)

// app holds the components shared by every command.
type app struct {
	logs   *logging.Factory
	cache  *db.DB
	client *remote.Client
	queue  *queue.Queue
	coord  *offlinesync.Coordinator
}

// openLogs routes component logs per the log.* settings. One-shot commands
// stay quiet unless --verbose is set or a log file is configured.
func openLogs(quiet bool) (*logging.Factory, error) {
	return logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Quiet:      quiet,
	})
}

// newApp opens the cache and wires the coordinator. A cache that cannot be
// opened is reported and the app continues in server-only mode. events may
// be nil.
func newApp(ctx context.Context, logs *logging.Factory, events offlinesync.Events) (*app, error) {
	logger := logs.Logger("app")

	cache, err := db.OpenAndInit(ctx, cfg.Cache.Path)
	if err != nil {
		logger.Printf("WARNING: cache unavailable, running server-only: %v", err)
		cache = nil
	}

	remoteConfig := &remote.Config{
		BaseURL: cfg.Server.URL,
		Timeout: cfg.Remote.Timeout,
		Logger:  logs.Logger("remote"),
	}
	if cfg.Remote.Breaker.Enabled {
		remoteConfig.Breaker = &remote.BreakerConfig{
			ConsecutiveFailures: cfg.Remote.Breaker.Failures,
			Cooldown:            cfg.Remote.Breaker.Cooldown,
		}
	}
	client, err := remote.NewClient(remoteConfig)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to create server client: %w", err)
	}

	q := queue.New(cache, queue.Options{
		DedupeFavorites: cfg.Queue.DedupeFavorites,
		Logger:          logs.Logger("queue"),
	})

	coordConfig := &offlinesync.Config{
		Restaurants:      cache,
		Reviews:          cache,
		Queue:            q,
		Remote:           client,
		Merger:           reconcile.New(cache, logs.Logger("reconcile")),
		Events:           events,
		ReconcileTimeout: cfg.Remote.ReconcileTimeout,
		Logger:           logs.Logger("sync"),
	}
	coord, err := offlinesync.New(coordConfig)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	return &app{
		logs:   logs,
		cache:  cache,
		client: client,
		queue:  q,
		coord:  coord,
	}, nil
}

// mustApp builds an app for a one-shot command or exits.
func mustApp(ctx context.Context) *app {
	logs, err := openLogs(!verbose)
	if err != nil {
		exitf("Error opening log file: %v", err)
	}
	a, err := newApp(ctx, logs, nil)
	if err != nil {
		_ = logs.Close()
		exitf("Error: %v", err)
	}
	return a
}

// Close waits for background reconciliation, then releases the cache and
// log file.
func (a *app) Close() {
	a.coord.Close()
	if err := a.cache.Close(); err != nil {
		a.logs.Logger("app").Printf("WARNING: %v", err)
	}
	_ = a.logs.Close()
}

// exitf is exitf for commands holding an app: os.Exit skips deferred
// calls, so the cache and log file are closed first.
func (a *app) exitf(format string, args ...any) {
	a.Close()
	exitf(format, args...)
}

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		exitf("Error: invalid restaurant id %q", arg)
	}
	return id
}
