// Package loop orchestrates fresh-context agent iterations against the
// session ledger.
package loop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// IterationOutcome represents the result of a single iteration.
type IterationOutcome string

const (
	// OutcomeTaskCompleted indicates the agent signaled completion and
	// the gates passed: the task is done.
	OutcomeTaskCompleted IterationOutcome = "task_completed"
	// OutcomeGatesFailed indicates the agent signaled completion but
	// gates failed.
	OutcomeGatesFailed IterationOutcome = "gates_failed"
	// OutcomeContinued indicates the agent exited cleanly without a
	// completion signal; the task stays in progress.
	OutcomeContinued IterationOutcome = "continued"
	// OutcomeBudgetExhausted indicates the task used up its per-run
	// attempt budget without a completion signal.
	OutcomeBudgetExhausted IterationOutcome = "attempt_budget_exhausted"
	// OutcomeProcessError indicates the agent crashed, timed out or was
	// interrupted.
	OutcomeProcessError IterationOutcome = "process_error"
	// OutcomeStalled indicates the agent went silent and was aborted.
	OutcomeStalled IterationOutcome = "stalled"
)

// validOutcomes is the set of valid iteration outcomes.
var validOutcomes = map[IterationOutcome]bool{
	OutcomeTaskCompleted:   true,
	OutcomeGatesFailed:     true,
	OutcomeContinued:       true,
	OutcomeBudgetExhausted: true,
	OutcomeProcessError:    true,
	OutcomeStalled:         true,
}

// IsValid returns true if the outcome is a valid value.
func (o IterationOutcome) IsValid() bool {
	return validOutcomes[o]
}

// IterationRecord is the audit record for one iteration.
type IterationRecord struct {
	// IterationID is the unique identifier for this iteration.
	IterationID string `json:"iteration_id"`

	// TaskID is the task worked on in this iteration.
	TaskID string `json:"task_id"`

	// Iteration is the 1-based iteration number within the session.
	Iteration int `json:"iteration"`

	// AttemptNumber is the attempt count for this task within the run.
	AttemptNumber int `json:"attempt_number"`

	// StartTime is when the iteration started.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the iteration completed.
	EndTime time.Time `json:"end_time"`

	// Outcome is the final result of the iteration.
	Outcome IterationOutcome `json:"outcome"`

	// Detail carries failure or classification detail, if any.
	Detail string `json:"detail,omitempty"`

	// FailedGates lists the names of gates that failed, if any.
	FailedGates []string `json:"failed_gates,omitempty"`

	// AgentLogPath is the raw agent output log for this iteration.
	AgentLogPath string `json:"agent_log_path,omitempty"`
}

// NewIterationRecord creates a record with a fresh short id and start time.
func NewIterationRecord(taskID string, iteration int) *IterationRecord {
	return &IterationRecord{
		IterationID: uuid.New().String()[:8],
		TaskID:      taskID,
		Iteration:   iteration,
		StartTime:   time.Now().UTC(),
	}
}

// Complete stamps the end time and outcome.
func (r *IterationRecord) Complete(outcome IterationOutcome) {
	r.EndTime = time.Now().UTC()
	r.Outcome = outcome
}

// Duration returns the elapsed time of the iteration.
func (r *IterationRecord) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// SaveRecord writes the record as JSON into dir and returns the path.
func SaveRecord(dir string, r *IterationRecord) (string, error) {
	if r == nil {
		return "", errors.New("record cannot be nil")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating records directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling record: %w", err)
	}

	filename := fmt.Sprintf("iteration-%s-%s.json", r.StartTime.Format("20060102-150405"), r.IterationID)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing record: %w", err)
	}
	return path, nil
}
