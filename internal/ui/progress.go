package ui

import (
	"fmt"
	"sync"
	"time"
)

// etaSmoothingFactor is the weight of a new ETA sample against the previous one.
const etaSmoothingFactor = 0.3

// ProgressTracker accumulates import progress and derives rate and ETA.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu        sync.Mutex
	now       func() time.Time
	startTime time.Time

	files  int
	done   int
	failed int
	total  int

	lastETA   time.Duration
	peakSpeed float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Files    int
	Done     int
	Failed   int
	Total    int
	Progress float64
	Speed    float64 // messages per second since start
	Peak     float64
	ETA      time.Duration
	Elapsed  time.Duration
}

// NewProgressTracker creates a tracker starting now.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{now: now, startTime: now()}
}

// Update records the latest event. Counters never move backwards, so
// out-of-order callbacks from concurrent workers are harmless.
func (p *ProgressTracker) Update(e ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.files = max(p.files, e.Files)
	p.done = max(p.done, e.Done)
	p.failed = max(p.failed, e.Failed)
	p.total = max(p.total, e.Total)

	if speed := p.speed(); speed > p.peakSpeed {
		p.peakSpeed = speed
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.done)/float64(p.total), 1.0)
	}

	return ProgressStats{
		Files:    p.files,
		Done:     p.done,
		Failed:   p.failed,
		Total:    p.total,
		Progress: progress,
		Speed:    p.speed(),
		Peak:     p.peakSpeed,
		ETA:      p.calculateETA(),
		Elapsed:  p.now().Sub(p.startTime),
	}
}

// speed must be called with mu held.
func (p *ProgressTracker) speed() float64 {
	elapsed := p.now().Sub(p.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.done) / elapsed
}

// calculateETA must be called with mu held.
func (p *ProgressTracker) calculateETA() time.Duration {
	if p.done == 0 || p.total == 0 || p.done >= p.total {
		return 0
	}

	elapsed := p.now().Sub(p.startTime)
	progress := float64(p.done) / float64(p.total)
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	smoothed := time.Duration(etaSmoothingFactor*float64(raw) + (1-etaSmoothingFactor)*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
