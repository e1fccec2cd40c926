package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures a FileWatcher.
type Options struct {
	// DebounceWindow coalesces bursts of writes. Default 200ms.
	DebounceWindow time.Duration

	// PollInterval is used when fsnotify is unavailable. Default 2s.
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// FileWatcher calls OnChange after the watched file is written, created or
// replaced.
type FileWatcher struct {
	path     string
	opts     Options
	onChange func()
}

// New returns a watcher for path.
func New(path string, opts Options, onChange func()) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	return &FileWatcher{path: abs, opts: opts.WithDefaults(), onChange: onChange}, nil
}

// Path returns the watched path.
func (w *FileWatcher) Path() string {
	return w.path
}

// Run watches until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	deb := NewDebouncer(w.opts.DebounceWindow, w.onChange)
	defer deb.Stop()

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			defer fsw.Close()
			if err = fsw.Add(filepath.Dir(w.path)); err == nil {
				return w.runFsnotify(ctx, fsw, deb)
			}
		}
		slog.Warn("fsnotify_unavailable_polling",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
	}
	return w.runPolling(ctx, deb)
}

func (w *FileWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher, deb *Debouncer) error {
	slog.Debug("file_watch_started", slog.String("path", w.path), slog.String("mode", "fsnotify"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				deb.Trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file_watch_error", slog.String("path", w.path), slog.String("error", err.Error()))
		}
	}
}

func (w *FileWatcher) runPolling(ctx context.Context, deb *Debouncer) error {
	slog.Debug("file_watch_started", slog.String("path", w.path), slog.String("mode", "polling"))

	last := modTime(w.path)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if mt := modTime(w.path); !mt.Equal(last) {
				last = mt
				deb.Trigger()
			}
		}
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
