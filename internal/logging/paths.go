package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.chatsearch/logs, or a temp-dir equivalent
// when the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chatsearch", "logs")
	}
	return filepath.Join(home, ".chatsearch", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "chatsearch.log")
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
