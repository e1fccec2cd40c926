package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func runWatcher(t *testing.T, opts Options) (string, *atomic.Int32) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	var calls atomic.Int32
	w, err := New(path, opts, func() { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	return path, &calls
}

func TestFileWatcher_Fsnotify(t *testing.T) {
	path, calls := runWatcher(t, Options{DebounceWindow: 20 * time.Millisecond})

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_IgnoresSiblings(t *testing.T) {
	path, calls := runWatcher(t, Options{DebounceWindow: 20 * time.Millisecond})

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0o600))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestFileWatcher_Polling(t *testing.T) {
	path, calls := runWatcher(t, Options{
		ForcePolling:   true,
		PollInterval:   20 * time.Millisecond,
		DebounceWindow: 10 * time.Millisecond,
	})

	// Ensure a distinct mtime on coarse filesystems.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
