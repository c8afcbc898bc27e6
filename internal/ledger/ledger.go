// Package ledger provides the persisted session ledger that carries task
// status and iteration counts across fresh-context agent attempts.
package ledger

import (
	"time"
)

// Status represents the lifecycle state of a tracked task.
type Status string

const (
	// StatusPending indicates the task has not been attempted yet.
	StatusPending Status = "pending"
	// StatusInProgress indicates an iteration is (or was) working on the task.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates the task finished and passed verification.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the last attempt on the task failed.
	StatusFailed Status = "failed"
	// StatusSkipped indicates the task was abandoned after repeated failures.
	StatusSkipped Status = "skipped"
)

// validStatuses is the set of valid status values.
var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusSkipped:    true,
}

// IsValid returns true if the status is a valid value.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// Terminal returns true if the status is terminal for the life of the
// session ledger (no further attempts will be made).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// TaskRecord is the per-task progress record. It is owned by the
// SessionLedger and mutated only through SetStatus and the explicit
// AddLearning/AddCommit calls.
type TaskRecord struct {
	// ID is the stable identifier from the task source.
	ID string `json:"id"`

	// Source tags where the task came from (e.g. "yaml", "markdown").
	Source string `json:"source"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// FailureCount is the number of failed attempts recorded against
	// this task. Drives the auto-skip threshold.
	FailureCount int `json:"failure_count"`

	// StartedAt is set on the first transition to in_progress.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is set on transition to completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Commits lists commit identifiers produced while working on the task.
	Commits []string `json:"commits,omitempty"`

	// Message holds the most recent status message, if any.
	Message string `json:"message,omitempty"`

	// Learnings holds short notes discovered during this session,
	// fed back into later prompts.
	Learnings []string `json:"learnings,omitempty"`
}

// SessionLedger is the full persisted state of one afk session.
type SessionLedger struct {
	// StartedAt is when the session began. Set once.
	StartedAt time.Time `json:"started_at"`

	// Iterations counts completed iterations. Monotonic except on an
	// explicit fresh-session reset.
	Iterations int `json:"iterations"`

	// Tasks maps task id to its progress record.
	Tasks map[string]*TaskRecord `json:"tasks"`
}

// NewSessionLedger returns a fresh empty ledger stamped with the current time.
func NewSessionLedger() *SessionLedger {
	return &SessionLedger{
		StartedAt: time.Now().UTC(),
		Tasks:     make(map[string]*TaskRecord),
	}
}

// Get returns the record for the given task id, or nil if absent.
func (l *SessionLedger) Get(id string) *TaskRecord {
	return l.Tasks[id]
}

// Ensure returns the record for the given task id, creating a pending
// record with the given source tag if it does not exist yet.
func (l *SessionLedger) Ensure(id, source string) *TaskRecord {
	if l.Tasks == nil {
		l.Tasks = make(map[string]*TaskRecord)
	}
	if t, ok := l.Tasks[id]; ok {
		return t
	}
	t := &TaskRecord{ID: id, Source: source, Status: StatusPending}
	l.Tasks[id] = t
	return t
}

// SetStatus looks up or creates the record for id and applies the status
// transition. It stamps started_at on the first transition to in_progress,
// completed_at on transition to completed, and increments failure_count
// when transitioning into failed. The actor identifies who requested the
// transition ("loop", "auto", "user") and is not persisted.
//
// SetStatus does not persist the ledger; callers must Save afterwards.
func (l *SessionLedger) SetStatus(id string, status Status, actor, message string) *TaskRecord {
	_ = actor
	t := l.Ensure(id, "unknown")

	now := time.Now().UTC()
	t.Status = status
	t.Message = message

	switch status {
	case StatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusFailed:
		t.FailureCount++
	case StatusPending, StatusSkipped:
		// No timestamp or counter changes.
	}

	return t
}

// ResetTask clears a failed task back to pending, zeroing its failure
// count. Returns false if the task does not exist or is not failed.
func (l *SessionLedger) ResetTask(id string) bool {
	t := l.Tasks[id]
	if t == nil || t.Status != StatusFailed {
		return false
	}
	t.Status = StatusPending
	t.FailureCount = 0
	t.Message = ""
	return true
}

// AddLearning appends a learning note to the given task, creating the
// record if needed.
func (l *SessionLedger) AddLearning(id, source, learning string) {
	t := l.Ensure(id, source)
	t.Learnings = append(t.Learnings, learning)
}

// AddCommit records a commit identifier against the given task.
func (l *SessionLedger) AddCommit(id, commit string) {
	t := l.Ensure(id, "unknown")
	t.Commits = append(t.Commits, commit)
}

// AllDone returns true if the task map is non-empty and every task is in
// a terminal state. An empty map is never "done": no tasks configured
// must not masquerade as success.
func (l *SessionLedger) AllDone() bool {
	if len(l.Tasks) == 0 {
		return false
	}
	for _, t := range l.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// CountByStatus returns the number of tasks with the given status.
func (l *SessionLedger) CountByStatus(status Status) int {
	n := 0
	for _, t := range l.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}
