package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainInterval throttles plain progress lines.
const plainInterval = 2 * time.Second

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	tracker  *ProgressTracker
	now      func() time.Time
	lastLine time.Time
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:     cfg.Output,
		tracker: NewProgressTracker(),
		now:     time.Now,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. A line is printed at most every
// plainInterval, and always for the last message.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Update(event)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	last := event.Total > 0 && event.Done >= event.Total
	if !last && !r.lastLine.IsZero() && now.Sub(r.lastLine) < plainInterval {
		return
	}
	r.lastLine = now

	stats := r.tracker.Stats()
	_, _ = fmt.Fprintf(r.out, "[IMPORT] %d/%d messages (%.0f%%) from %d files",
		stats.Done, stats.Total, stats.Progress*100, stats.Files)
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d failed", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d messages from %d files imported into chat %d in %s",
		stats.Messages, stats.Files, stats.ChannelID, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
