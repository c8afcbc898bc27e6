package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "progress.json"))

	l, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, l.Tasks)
	assert.Equal(t, 0, l.Iterations)
	assert.False(t, l.StartedAt.IsZero())
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewStore(path)

	l := NewSessionLedger()
	l.Iterations = 3
	l.Ensure("task-1", "yaml")
	l.SetStatus("task-1", StatusInProgress, "loop", "")
	l.SetStatus("task-1", StatusFailed, "loop", "gates failed")
	l.AddLearning("task-1", "yaml", "use make test")
	l.AddCommit("task-1", "abc1234")
	l.AddCommit("task-1", "def5678")
	l.Ensure("task-2", "yaml")

	require.NoError(t, store.Save(l))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Iterations)
	require.Len(t, loaded.Tasks, 2)

	rec := loaded.Get("task-1")
	require.NotNil(t, rec)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.FailureCount)
	assert.Equal(t, "gates failed", rec.Message)
	assert.Equal(t, []string{"use make test"}, rec.Learnings)
	assert.Equal(t, []string{"abc1234", "def5678"}, rec.Commits)
	require.NotNil(t, rec.StartedAt)

	// task-2 never started: optional fields stay empty.
	rec2 := loaded.Get("task-2")
	require.NotNil(t, rec2)
	assert.Nil(t, rec2.StartedAt)
	assert.Nil(t, rec2.CompletedAt)
	assert.Empty(t, rec2.Learnings)
	assert.Empty(t, rec2.Commits)
}

func TestStore_SaveOmitsEmptyOptionalFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewStore(path)

	l := NewSessionLedger()
	l.Ensure("task-1", "yaml")
	require.NoError(t, store.Save(l))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "started_at")
	assert.NotContains(t, string(data), "learnings")
	assert.NotContains(t, string(data), "commits")
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "progress.json"))

	require.NoError(t, store.Save(NewSessionLedger()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "progress.json", entries[0].Name())
}

func TestStore_SaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewStore(path)

	l := NewSessionLedger()
	l.Iterations = 1
	require.NoError(t, store.Save(l))
	l.Iterations = 2
	require.NoError(t, store.Save(l))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded SessionLedger
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, 2, loaded.Iterations)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestStore_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewStore(path)

	require.NoError(t, store.Save(NewSessionLedger()))
	require.NoError(t, store.Reset())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Resetting a missing file is fine.
	require.NoError(t, store.Reset())
}
