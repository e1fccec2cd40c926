package daemon

import (
	"context"
	"errors"
	"log/slog"
)

// Serve acquires the instance lock and serves handler until ctx is
// cancelled.
func Serve(ctx context.Context, cfg Config, handler Handler, backend string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDir(); err != nil {
		return err
	}

	lock := NewInstanceLock(cfg.PIDPath)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("instance_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := NewServer(cfg, handler, backend)
	if err != nil {
		return err
	}

	err = srv.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("daemon_stopped")
		return nil
	}
	return err
}
