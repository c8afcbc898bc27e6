// Package limits decides whether the loop may run another iteration.
package limits

import (
	"fmt"
	"sort"

	"github.com/m0nkmaster/afk-sub001/internal/ledger"
)

// RunLimits holds the configured limits for a run. All values are
// positive and immutable for the duration of the run.
type RunLimits struct {
	// MaxIterations caps the number of iterations in a session.
	MaxIterations int `json:"max_iterations"`

	// MaxTaskFailures is the failure count at which a task is auto-skipped.
	MaxTaskFailures int `json:"max_task_failures"`

	// TimeoutMinutes caps the wall-clock duration of a session.
	TimeoutMinutes int `json:"timeout_minutes"`
}

// Signal identifies why the evaluator allowed or stopped the loop.
type Signal string

const (
	// SignalContinue indicates the loop may run another iteration.
	SignalContinue Signal = "continue"
	// SignalComplete indicates every task is completed or skipped.
	SignalComplete Signal = "complete"
	// SignalMaxIterations indicates the iteration cap was reached.
	SignalMaxIterations Signal = "max_iterations"
)

// Decision is the result of a limit check.
type Decision struct {
	// CanContinue indicates whether the loop may run another iteration.
	CanContinue bool

	// Signal identifies the stop reason when CanContinue is false,
	// or SignalContinue otherwise.
	Signal Signal

	// AutoSkipped lists ids of tasks transitioned to skipped during this
	// check because their failure count reached the threshold.
	AutoSkipped []string
}

// CheckLimits evaluates the configured limits against the ledger. The
// checks run in a fixed order; the order is part of the contract:
//
//  1. Iteration cap: returns MaxIterations without touching the ledger.
//  2. Auto-skip: tasks at or over the failure threshold (and not already
//     terminal) are transitioned to skipped in the ledger.
//  3. Completion: a non-empty task map with every task terminal returns
//     Complete. An empty map never does: "no tasks configured" must not
//     masquerade as success.
//  4. Otherwise the loop continues.
//
// Auto-skip mutates the ledger in memory; the caller is responsible for
// persisting afterwards.
func CheckLimits(l *ledger.SessionLedger, currentIteration int, lim RunLimits) Decision {
	if currentIteration > lim.MaxIterations {
		return Decision{CanContinue: false, Signal: SignalMaxIterations}
	}

	autoSkipped := autoSkipStuckTasks(l, lim.MaxTaskFailures)

	if l.AllDone() {
		return Decision{CanContinue: false, Signal: SignalComplete, AutoSkipped: autoSkipped}
	}

	return Decision{CanContinue: true, Signal: SignalContinue, AutoSkipped: autoSkipped}
}

// autoSkipStuckTasks transitions tasks that keep failing to skipped and
// returns their ids. Ids are processed in sorted order so the result is
// deterministic across runs.
func autoSkipStuckTasks(l *ledger.SessionLedger, maxFailures int) []string {
	var ids []string
	for id, t := range l.Tasks {
		if t.Status.Terminal() {
			continue
		}
		if t.FailureCount >= maxFailures {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := l.Tasks[id]
		msg := fmt.Sprintf("skipped after %d failures (threshold %d)", t.FailureCount, maxFailures)
		l.SetStatus(id, ledger.StatusSkipped, "auto", msg)
	}
	return ids
}
