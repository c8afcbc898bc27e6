// Package archive moves completed session ledgers into a timestamped
// archive directory.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LedgerArchive manages archiving of session ledger files.
type LedgerArchive struct {
	archiveDir string
}

// NewLedgerArchive creates an archive manager for the given directory.
func NewLedgerArchive(archiveDir string) *LedgerArchive {
	return &LedgerArchive{archiveDir: archiveDir}
}

// Archive moves the ledger file into the archive directory with a
// timestamped filename and returns the archived path.
func (a *LedgerArchive) Archive(ledgerPath string) (string, error) {
	if _, err := os.Stat(ledgerPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.archiveDir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	archivedPath := a.generateUniqueArchivePath(time.Now())

	content, err := os.ReadFile(ledgerPath)
	if err != nil {
		return "", fmt.Errorf("reading ledger file: %w", err)
	}

	if err := os.WriteFile(archivedPath, content, 0644); err != nil {
		return "", fmt.Errorf("writing archived file: %w", err)
	}

	if err := os.Remove(ledgerPath); err != nil {
		_ = os.Remove(archivedPath)
		return "", fmt.Errorf("removing original file: %w", err)
	}

	return archivedPath, nil
}

// generateUniqueArchivePath generates a unique archive path, appending
// a counter suffix on collision.
func (a *LedgerArchive) generateUniqueArchivePath(t time.Time) string {
	baseFilename := generateArchiveFilename(t)
	basePath := filepath.Join(a.archiveDir, baseFilename)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return basePath
	}

	ext := filepath.Ext(baseFilename)
	nameWithoutExt := strings.TrimSuffix(baseFilename, ext)

	for i := 1; i < 1000; i++ {
		suffixedPath := filepath.Join(a.archiveDir, fmt.Sprintf("%s-%d%s", nameWithoutExt, i, ext))
		if _, err := os.Stat(suffixedPath); os.IsNotExist(err) {
			return suffixedPath
		}
	}

	return basePath
}

// ArchiveDir returns the archive directory path.
func (a *LedgerArchive) ArchiveDir() string {
	return a.archiveDir
}

// ListArchives returns archived ledger paths, newest first.
func (a *LedgerArchive) ListArchives() ([]string, error) {
	if _, err := os.Stat(a.archiveDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(a.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "progress-") && strings.HasSuffix(name, ".json") {
			archives = append(archives, filepath.Join(a.archiveDir, name))
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(archives)))

	return archives, nil
}

// generateArchiveFilename creates a timestamped filename for an
// archived ledger.
func generateArchiveFilename(t time.Time) string {
	return fmt.Sprintf("progress-%s.json", t.Format("20060102-150405"))
}
