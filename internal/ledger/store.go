package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store reads and writes the session ledger file. The ledger never
// auto-persists: every mutation must be followed by an explicit Save so
// the load-mutate-save cycle stays visible at the call site.
//
// A single controller process owns a given ledger file at a time;
// concurrent controllers against the same file are unsupported.
type Store struct {
	path string
}

// NewStore creates a Store for the given ledger file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted ledger. A missing file is not an error: a
// fresh empty ledger is returned instead, so a first run needs no setup.
func (s *Store) Load() (*SessionLedger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSessionLedger(), nil
		}
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	var l SessionLedger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing ledger %s: %w", s.path, err)
	}
	if l.Tasks == nil {
		l.Tasks = make(map[string]*TaskRecord)
	}
	return &l, nil
}

// Save writes the full ledger. It writes to a temp file in the same
// directory and renames it over the target, so a crash mid-write never
// corrupts a previously valid ledger file.
func (s *Store) Save(l *SessionLedger) error {
	if l == nil {
		return errors.New("ledger cannot be nil")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp ledger file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp ledger file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing ledger file: %w", err)
	}
	return nil
}

// Reset removes the ledger file. Used for an explicit fresh-session start;
// a missing file is not an error.
func (s *Store) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing ledger file: %w", err)
	}
	return nil
}
