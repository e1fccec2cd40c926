package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend names an IndexStore implementation.
type Backend string

const (
	// BackendBleve keeps one Bleve index directory per chat (default).
	BackendBleve Backend = "bleve"

	// BackendSQLite keeps every chat in one SQLite FTS5 database.
	BackendSQLite Backend = "sqlite"
)

// Open creates an IndexStore for backend under dataDir.
// An empty dataDir keeps everything in memory.
//
//   - "bleve" (default): <dataDir>/<index>.bleve
//   - "sqlite": <dataDir>/chatsearch.db
func Open(backend, dataDir, language string) (IndexStore, error) {
	switch Backend(backend) {
	case BackendBleve, "":
		return NewBleveStore(dataDir, language)

	case BackendSQLite:
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "chatsearch.db")
		}
		return NewSQLiteStore(path, language)

	default:
		return nil, fmt.Errorf("unknown store backend: %s (valid options: bleve, sqlite)", backend)
	}
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
