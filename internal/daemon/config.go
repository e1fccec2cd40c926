// Package daemon serves the search service over a Unix socket so the chat
// gateway, the CLI and the MCP server can share one index store.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.chatsearch/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID. The
	// single-instance lock lives next to it.
	// Default: ~/.chatsearch/daemon.pid
	PIDPath string

	// Timeout bounds one client round-trip.
	// Default: 10s
	Timeout time.Duration

	// IdleTimeout closes connections without a request for this long.
	// Default: 2m
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".chatsearch")

	return Config{
		SocketPath:  filepath.Join(dir, "daemon.sock"),
		PIDPath:     filepath.Join(dir, "daemon.pid"),
		Timeout:     10 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
