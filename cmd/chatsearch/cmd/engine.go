package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/chatsearch/internal/config"
	"github.com/Aman-CERP/chatsearch/internal/daemon"
	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

// backend is what the CLI, the MCP server and the bot need from either a
// local engine or a running daemon.
type backend interface {
	AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error
	Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error)
	Indexes(ctx context.Context) ([]store.IndexStats, error)
}

var (
	_ backend = (*search.Service)(nil)
	_ backend = (*daemon.Client)(nil)
)

// engine is an in-process search service over the configured store.
type engine struct {
	service *search.Service
	metrics *telemetry.QueryMetrics
	store   store.IndexStore
	lock    *daemon.InstanceLock
}

// openEngine opens the store and builds the search service. On-disk stores
// are guarded by a lock so two processes never write the same indexes.
func openEngine(cfg *config.Config, prom *telemetry.Prometheus) (*engine, error) {
	e := &engine{}

	if cfg.Store.Path != "" {
		e.lock = daemon.NewInstanceLock(filepath.Join(cfg.Store.Path, "store.pid"))
		if err := e.lock.Acquire(); err != nil {
			return nil, cserrors.StoreError("index store is in use by another process", err).
				WithSuggestion("Stop the other chatsearch process, or use the daemon: 'chatsearch daemon start'")
		}
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path, cfg.Store.Language)
	if err != nil {
		e.releaseLock()
		return nil, cserrors.StoreError("failed to open index store", err).
			WithDetail("backend", cfg.Store.Backend).
			WithDetail("path", cfg.Store.Path)
	}
	e.store = st

	e.metrics = telemetry.NewQueryMetrics(telemetry.DefaultConfig(), prom)
	e.service, err = search.New(st, search.Config{
		StoreTimeout:   cfg.StoreTimeout(),
		IndexCacheSize: cfg.Search.IndexCacheSize,
		Language:       cfg.Store.Language,
	}, search.WithMetrics(e.metrics), search.WithLogger(slog.Default()))
	if err != nil {
		_ = st.Close()
		e.releaseLock()
		return nil, err
	}

	slog.Info("engine_opened",
		slog.String("backend", cfg.Store.Backend),
		slog.String("path", cfg.Store.Path),
		slog.String("language", cfg.Store.Language))
	return e, nil
}

// Close closes the store and releases the lock.
func (e *engine) Close() error {
	err := e.store.Close()
	e.releaseLock()
	return err
}

func (e *engine) releaseLock() {
	if e.lock == nil {
		return
	}
	if err := e.lock.Release(); err != nil {
		slog.Warn("store_lock_release_failed", slog.String("error", err.Error()))
	}
}

// daemonConfig converts the daemon section of cfg.
func daemonConfig(cfg *config.Config) daemon.Config {
	dc := daemon.DefaultConfig()
	dc.SocketPath = cfg.Daemon.SocketPath
	dc.PIDPath = cfg.Daemon.PIDPath
	dc.Timeout = cfg.DaemonTimeout()
	return dc
}

// connect returns the daemon when it is running and local is false,
// otherwise a local engine. metrics is nil when the daemon serves.
func connect(cfg *config.Config, local bool) (b backend, metrics *telemetry.QueryMetrics, cleanup func(), err error) {
	if !local {
		client := daemon.NewClient(daemonConfig(cfg))
		if client.IsRunning() {
			slog.Debug("using_daemon", slog.String("socket", cfg.Daemon.SocketPath))
			return client, nil, func() {}, nil
		}
	}

	e, err := openEngine(cfg, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return e.service, e.metrics, func() { _ = e.Close() }, nil
}
