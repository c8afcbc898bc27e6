package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/m0nkmaster/afk-sub001/internal/archive"
	"github.com/m0nkmaster/afk-sub001/internal/executor"
	"github.com/m0nkmaster/afk-sub001/internal/feedback"
	"github.com/m0nkmaster/afk-sub001/internal/gates"
	"github.com/m0nkmaster/afk-sub001/internal/ledger"
	"github.com/m0nkmaster/afk-sub001/internal/limits"
	"github.com/m0nkmaster/afk-sub001/internal/marker"
	"github.com/m0nkmaster/afk-sub001/internal/prompt"
	"github.com/m0nkmaster/afk-sub001/internal/source"
)

// StopReason is why a run ended.
type StopReason string

const (
	// StopComplete indicates every task reached a terminal status.
	StopComplete StopReason = "complete"
	// StopMaxIterations indicates the iteration budget was exhausted.
	StopMaxIterations StopReason = "max_iterations"
	// StopTimeout indicates the run exceeded its wall-clock budget.
	StopTimeout StopReason = "timeout"
	// StopNoTasks indicates the task source had nothing to work on.
	StopNoTasks StopReason = "no_tasks"
	// StopUserInterrupt indicates the run was cancelled by the operator.
	StopUserInterrupt StopReason = "user_interrupt"
	// StopAiError indicates repeated consecutive agent process failures.
	StopAiError StopReason = "ai_error"
)

// validStopReasons is the set of valid stop reasons.
var validStopReasons = map[StopReason]bool{
	StopComplete:      true,
	StopMaxIterations: true,
	StopTimeout:       true,
	StopNoTasks:       true,
	StopUserInterrupt: true,
	StopAiError:       true,
}

// IsValid returns true if the stop reason is a valid value.
func (r StopReason) IsValid() bool {
	return validStopReasons[r]
}

// RunSummary is the final outcome of a run.
type RunSummary struct {
	// StopReason is why the run ended.
	StopReason StopReason `json:"stop_reason"`

	// IterationsCompleted is the number of iterations that ran.
	IterationsCompleted int `json:"iterations_completed"`

	// TasksCompleted and TasksTotal summarize ledger state at stop.
	TasksCompleted int `json:"tasks_completed"`
	TasksTotal     int `json:"tasks_total"`

	// DurationSeconds is the wall-clock length of the run.
	DurationSeconds float64 `json:"duration_seconds"`

	// ArchivedTo is where the ledger was archived, if it was.
	ArchivedTo string `json:"archived_to,omitempty"`
}

// AgentExecutor runs the coding agent for one iteration.
type AgentExecutor interface {
	Execute(ctx context.Context, prompt string) (*executor.Result, error)
}

// GateRunner runs the configured quality gates.
type GateRunner interface {
	Run(ctx context.Context, gates []gates.Gate) gates.QualityGateResult
}

// Deps contains the dependencies for the Controller.
type Deps struct {
	Source   source.Source
	Executor AgentExecutor

	// Gates runs quality gates; nil means no gates are configured and
	// every iteration passes verification.
	Gates    GateRunner
	GateList []gates.Gate

	Store  *ledger.Store
	Prompt *prompt.Builder

	// Archive receives the ledger on a complete run; nil disables
	// archiving.
	Archive *archive.LedgerArchive

	// Console renders operator feedback; nil silences it.
	Console *feedback.Console

	// LogsDir is where iteration records are written.
	LogsDir string
}

// Options configures a single run.
type Options struct {
	MaxIterations     int
	MaxTaskFailures   int
	TimeoutMinutes    int
	MaxTaskIterations int

	// UntilComplete ignores the iteration budget and runs until another
	// stop condition fires.
	UntilComplete bool

	// Resume keeps the existing ledger instead of starting fresh.
	Resume bool

	// CountGateFailures makes a gate failure increment the task's
	// failure count, feeding the auto-skip threshold.
	CountGateFailures bool

	// AiErrorThreshold is the consecutive-process-failure count that
	// stops the run. Zero means DefaultAiErrorThreshold.
	AiErrorThreshold int

	// CompletionMarker is the marker the prompt instructs the agent to
	// emit when the active task is done. Empty falls back to the first
	// default marker.
	CompletionMarker string
}

// Controller orchestrates the iteration loop. Each iteration loads the
// ledger from disk, mutates it, and saves it back; nothing is kept
// resident between iterations, matching the agent's fresh-context model.
type Controller struct {
	deps Deps
	opts Options

	breaker *gobreaker.CircuitBreaker

	// taskAttempts counts attempts per task within this run only.
	taskAttempts map[string]int

	// lastFailure holds per-task failure output fed into retry prompts.
	lastFailure map[string]string
}

// NewController creates a Controller.
func NewController(deps Deps, opts Options) *Controller {
	if deps.Console == nil {
		deps.Console = feedback.NewConsole(io.Discard, false)
	}
	if opts.CompletionMarker == "" {
		opts.CompletionMarker = marker.DefaultMarkers[0]
	}
	return &Controller{
		deps:         deps,
		opts:         opts,
		breaker:      newAgentBreaker(opts.AiErrorThreshold),
		taskAttempts: make(map[string]int),
		lastFailure:  make(map[string]string),
	}
}

// Run executes the loop until a stop condition fires and returns the
// summary. Errors are reserved for broken infrastructure (unreadable
// ledger, unwritable state); agent failures are loop outcomes, not
// errors.
func (c *Controller) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()

	if !c.opts.Resume {
		// A fresh start archives whatever the previous session left
		// behind instead of silently discarding it.
		if c.deps.Archive != nil {
			if prev, loadErr := c.deps.Store.Load(); loadErr == nil && prev.Iterations > 0 {
				_, _ = c.deps.Archive.Archive(c.deps.Store.Path())
			}
		}
		if err := c.deps.Store.Reset(); err != nil {
			return nil, err
		}
	}

	effectiveMax := c.opts.MaxIterations
	if c.opts.UntilComplete {
		effectiveMax = int(^uint(0) >> 1)
	}
	lim := limits.RunLimits{
		MaxIterations:   effectiveMax,
		MaxTaskFailures: c.opts.MaxTaskFailures,
		TimeoutMinutes:  c.opts.TimeoutMinutes,
	}
	deadline := start.Add(time.Duration(c.opts.TimeoutMinutes) * time.Minute)

	iterationsRun := 0
	var reason StopReason

loop:
	for {
		select {
		case <-ctx.Done():
			reason = StopUserInterrupt
			break loop
		default:
		}

		if c.opts.TimeoutMinutes > 0 && time.Now().After(deadline) {
			reason = StopTimeout
			break loop
		}

		led, err := c.deps.Store.Load()
		if err != nil {
			return nil, err
		}

		tasks, err := c.deps.Source.List()
		if err != nil {
			return nil, fmt.Errorf("listing tasks: %w", err)
		}
		if len(tasks) == 0 {
			reason = StopNoTasks
			break loop
		}
		for _, t := range tasks {
			led.Ensure(t.ID, t.Source)
		}

		iteration := led.Iterations + 1
		decision := limits.CheckLimits(led, iteration, lim)
		for _, id := range decision.AutoSkipped {
			c.deps.Console.Warn("auto-skipped %s after repeated failures", id)
		}
		if len(decision.AutoSkipped) > 0 || decision.Signal == limits.SignalComplete {
			if err := c.deps.Store.Save(led); err != nil {
				return nil, err
			}
		}
		if !decision.CanContinue {
			switch decision.Signal {
			case limits.SignalComplete:
				reason = StopComplete
			default:
				reason = StopMaxIterations
			}
			break loop
		}

		task := nextTask(tasks, led)
		if task == nil {
			if err := c.deps.Store.Save(led); err != nil {
				return nil, err
			}
			reason = StopComplete
			break loop
		}

		c.taskAttempts[task.ID]++
		record := NewIterationRecord(task.ID, iteration)
		record.AttemptNumber = c.taskAttempts[task.ID]

		led.SetStatus(task.ID, ledger.StatusInProgress, "loop", "")
		if err := c.deps.Store.Save(led); err != nil {
			return nil, err
		}

		c.deps.Console.Info("iteration %d/%d: %s", iteration, c.opts.MaxIterations, task.Title)

		promptText, err := c.deps.Prompt.Build(prompt.IterationContext{
			Task:             task,
			Learnings:        collectLearnings(tasks, led),
			Iteration:        iteration,
			MaxIterations:    c.opts.MaxIterations,
			CompletedCount:   led.CountByStatus(ledger.StatusCompleted),
			TotalCount:       len(tasks),
			Gates:            c.deps.GateList,
			FailureOutput:    c.lastFailure[task.ID],
			CompletionMarker: c.opts.CompletionMarker,
		})
		if err != nil {
			return nil, fmt.Errorf("building prompt: %w", err)
		}

		c.deps.Console.StartSpinner("agent working")
		res, execErr := c.executeAgent(ctx, promptText)
		c.deps.Console.StopSpinner()

		if execErr != nil {
			if errors.Is(execErr, gobreaker.ErrOpenState) {
				led.SetStatus(task.ID, ledger.StatusPending, "loop", "agent unavailable")
				if err := c.deps.Store.Save(led); err != nil {
					return nil, err
				}
				reason = StopAiError
				break loop
			}
			// Spawn failure: counted by the breaker, treated like a
			// process error.
			res = &executor.Result{Kind: executor.OutcomeProcessError, Detail: execErr.Error()}
		}
		record.AgentLogPath = res.LogPath

		if ctx.Err() != nil && res.Kind != executor.OutcomeCompletion {
			led.SetStatus(task.ID, ledger.StatusPending, "loop", "interrupted")
			if err := c.deps.Store.Save(led); err != nil {
				return nil, err
			}
			record.Complete(OutcomeProcessError)
			record.Detail = "interrupted"
			_, _ = SaveRecord(c.deps.LogsDir, record)
			reason = StopUserInterrupt
			break loop
		}

		// A completion that raced the interrupt is still verified and
		// recorded; the loop stops at the next iteration check.
		handleCtx := ctx
		if ctx.Err() != nil {
			handleCtx = context.Background()
		}
		outcome := c.handleResult(handleCtx, led, task, res, record)

		led.Iterations = iteration
		if err := c.deps.Store.Save(led); err != nil {
			return nil, err
		}
		iterationsRun++

		record.Complete(outcome)
		_, _ = SaveRecord(c.deps.LogsDir, record)

		if (outcome == OutcomeProcessError || outcome == OutcomeStalled) && c.breaker.State() == gobreaker.StateOpen {
			reason = StopAiError
			break loop
		}
	}

	return c.finish(start, iterationsRun, reason)
}

// handleResult applies one classified agent result to the ledger and
// returns the iteration outcome. The ledger is mutated but not saved.
func (c *Controller) handleResult(ctx context.Context, led *ledger.SessionLedger, task *source.Task, res *executor.Result, record *IterationRecord) IterationOutcome {
	switch res.Kind {
	case executor.OutcomeStalled:
		executor.AbortStalled(res)
		led.SetStatus(task.ID, ledger.StatusFailed, "loop", res.Detail)
		c.lastFailure[task.ID] = res.Detail
		record.Detail = res.Detail
		c.deps.Console.Error("agent stalled: %s", res.Detail)
		return OutcomeStalled

	case executor.OutcomeProcessError:
		led.SetStatus(task.ID, ledger.StatusFailed, "loop", res.Detail)
		c.lastFailure[task.ID] = res.Detail
		record.Detail = res.Detail
		c.deps.Console.Error("agent process error: %s", res.Detail)
		return OutcomeProcessError

	case executor.OutcomeCompletion:
		recordLearnings(led, task, res.Output)
		gateResult := c.runGates(ctx)
		if !gateResult.AllPassed {
			failure := summarizeGateFailures(gateResult)
			status := ledger.StatusPending
			if c.opts.CountGateFailures {
				status = ledger.StatusFailed
			}
			led.SetStatus(task.ID, status, "loop",
				fmt.Sprintf("gates failed: %s", strings.Join(gateResult.FailedGates, ", ")))
			c.lastFailure[task.ID] = failure
			record.FailedGates = gateResult.FailedGates
			record.Detail = failure
			c.deps.Console.Error("gates failed: %s", strings.Join(gateResult.FailedGates, ", "))
			return OutcomeGatesFailed
		}

		led.SetStatus(task.ID, ledger.StatusCompleted, "loop", "")
		delete(c.lastFailure, task.ID)
		c.deps.Console.Success("completed %s", task.ID)
		return OutcomeTaskCompleted

	case executor.OutcomeContinued:
		recordLearnings(led, task, res.Output)
		// No completion signal. The task stays in progress so the next
		// iteration resumes it, unless its attempt budget ran out.
		if c.opts.MaxTaskIterations > 0 && c.taskAttempts[task.ID] >= c.opts.MaxTaskIterations {
			detail := fmt.Sprintf("no completion signal after %d attempts", c.taskAttempts[task.ID])
			led.SetStatus(task.ID, ledger.StatusFailed, "loop", detail)
			c.lastFailure[task.ID] = detail
			record.Detail = detail
			c.deps.Console.Warn("%s: %s", task.ID, detail)
			return OutcomeBudgetExhausted
		}
		c.deps.Console.Muted("no completion signal, task stays in progress")
		return OutcomeContinued

	default:
		led.SetStatus(task.ID, ledger.StatusFailed, "loop", fmt.Sprintf("unknown outcome %q", res.Kind))
		record.Detail = string(res.Kind)
		return OutcomeProcessError
	}
}

// executeAgent runs one agent invocation through the escalation breaker.
// Process failures count against the breaker; context cancellation does
// not.
func (c *Controller) executeAgent(ctx context.Context, promptText string) (*executor.Result, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		res, execErr := c.deps.Executor.Execute(ctx, promptText)
		if execErr != nil {
			return nil, execErr
		}
		if res.Kind == executor.OutcomeProcessError && ctx.Err() == nil {
			return res, errAgentProcess
		}
		return res, nil
	})

	res, _ := v.(*executor.Result)
	if err != nil && !errors.Is(err, errAgentProcess) {
		return res, err
	}
	return res, nil
}

var errAgentProcess = errors.New("agent process failure")

// runGates runs the configured gates, or passes trivially when none
// are configured.
func (c *Controller) runGates(ctx context.Context) gates.QualityGateResult {
	if c.deps.Gates == nil || len(c.deps.GateList) == 0 {
		return gates.QualityGateResult{AllPassed: true}
	}
	c.deps.Console.Muted("running quality gates")
	return c.deps.Gates.Run(ctx, c.deps.GateList)
}

// finish builds the summary and archives the ledger on completion.
func (c *Controller) finish(start time.Time, iterationsRun int, reason StopReason) (*RunSummary, error) {
	led, err := c.deps.Store.Load()
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		StopReason:          reason,
		IterationsCompleted: iterationsRun,
		TasksCompleted:      led.CountByStatus(ledger.StatusCompleted),
		TasksTotal:          len(led.Tasks),
		DurationSeconds:     time.Since(start).Seconds(),
	}

	if reason == StopComplete && c.deps.Archive != nil {
		archivedTo, archiveErr := c.deps.Archive.Archive(c.deps.Store.Path())
		if archiveErr == nil {
			summary.ArchivedTo = archivedTo
		}
	}

	return summary, nil
}

// nextTask returns the first task in declaration order whose ledger
// record is not terminal. Declaration order is the selection order.
func nextTask(tasks []source.Task, led *ledger.SessionLedger) *source.Task {
	for i := range tasks {
		rec := led.Get(tasks[i].ID)
		if rec == nil || !rec.Status.Terminal() {
			return &tasks[i]
		}
	}
	return nil
}

// collectLearnings gathers session learnings across tasks in
// declaration order.
func collectLearnings(tasks []source.Task, led *ledger.SessionLedger) []string {
	var out []string
	for _, t := range tasks {
		rec := led.Get(t.ID)
		if rec == nil {
			continue
		}
		out = append(out, rec.Learnings...)
	}
	return out
}

// learningPrefix marks agent output lines recorded as session learnings.
const learningPrefix = "LEARNING:"

// recordLearnings scrapes prefixed lines out of agent output and appends
// them to the task's ledger record so later prompts carry them.
func recordLearnings(led *ledger.SessionLedger, task *source.Task, output string) {
	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), learningPrefix)
		if !ok {
			continue
		}
		if rest = strings.TrimSpace(rest); rest != "" {
			led.AddLearning(task.ID, task.Source, rest)
		}
	}
}

// summarizeGateFailures joins failed gate outputs for the retry prompt.
func summarizeGateFailures(res gates.QualityGateResult) string {
	var sb strings.Builder
	for _, g := range res.Results {
		if g.Passed {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n%s\n", g.Name, g.Output)
	}
	return strings.TrimSpace(sb.String())
}
