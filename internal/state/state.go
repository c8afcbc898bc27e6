// Package state manages the .afk directory structure and state files.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory and file names for the .afk structure.
const (
	AfkDir       = ".afk"
	LogsDir      = "logs"
	ArchiveDir   = "archive"
	ProgressFile = "progress.json"
	TasksFile    = "tasks.yaml"
	ConfigFile   = "afk.yaml"
)

// AfkDirPath returns the path to the .afk directory.
func AfkDirPath(root string) string {
	return filepath.Join(root, AfkDir)
}

// LogsDirPath returns the path to the logs directory.
func LogsDirPath(root string) string {
	return filepath.Join(root, AfkDir, LogsDir)
}

// ArchiveDirPath returns the path to the archive directory.
func ArchiveDirPath(root string) string {
	return filepath.Join(root, AfkDir, ArchiveDir)
}

// ProgressFilePath returns the path to the session ledger file.
func ProgressFilePath(root string) string {
	return filepath.Join(root, AfkDir, ProgressFile)
}

// TasksFilePath returns the path to the task source file.
func TasksFilePath(root string) string {
	return filepath.Join(root, AfkDir, TasksFile)
}

// ConfigFilePath returns the path to the project config file.
func ConfigFilePath(root string) string {
	return filepath.Join(root, AfkDir, ConfigFile)
}

// EnsureAfkDir creates the .afk directory structure if it doesn't exist.
// It creates:
//   - .afk/
//   - .afk/logs/
//   - .afk/archive/
//
// The function is idempotent. All directories are created with 0755.
func EnsureAfkDir(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("root directory does not exist: %s", root)
	}

	dirs := []string{
		AfkDirPath(root),
		LogsDirPath(root),
		ArchiveDirPath(root),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
