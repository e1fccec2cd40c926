package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// MaxBackups is the number of config backups kept next to the config file.
const MaxBackups = 3

// BackupFile copies path to a timestamped "<path>.bak.<stamp>" sibling and
// prunes older backups. Returns "" when path does not exist.
func BackupFile(path string) (string, error) {
	if !fileExists(path) {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Best effort; the backup itself succeeded.
	_ = pruneBackups(path)

	return backupPath, nil
}

// ListBackups returns backups of path, newest first.
func ListBackups(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".bak.*")
	if err != nil {
		return nil, err
	}
	// The timestamp suffix sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func pruneBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	for i := MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
