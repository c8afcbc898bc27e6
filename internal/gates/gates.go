// Package gates runs the configured verification commands that gate task
// acceptance.
package gates

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// DefaultGateTimeout bounds a single gate command.
const DefaultGateTimeout = 5 * time.Minute

// DefaultMaxOutputSize is the maximum captured output per gate (1MB).
const DefaultMaxOutputSize = 1024 * 1024

// standardOrder is the fixed execution order for the recognized gate
// names. Cheap checks surface first; custom gates follow in insertion
// order.
var standardOrder = []string{"types", "lint", "test", "build"}

// Gate is a named verification command run through the shell.
type Gate struct {
	Name    string
	Command string
}

// GateResult contains the outcome of a single gate.
type GateResult struct {
	// Name is the gate name ("types", "lint", "test", "build", or custom).
	Name string `json:"name"`

	// Passed indicates the command exited with code 0.
	Passed bool `json:"passed"`

	// Output is the combined stdout/stderr from the command.
	Output string `json:"output"`
}

// QualityGateResult aggregates all gate outcomes for one verification pass.
type QualityGateResult struct {
	// AllPassed is the logical AND of every gate's Passed.
	AllPassed bool `json:"all_passed"`

	// FailedGates lists failing gate names in execution order.
	FailedGates []string `json:"failed_gates"`

	// Results holds per-gate results in execution order.
	Results []GateResult `json:"results"`
}

// Runner executes quality gates sequentially as shell commands.
type Runner struct {
	workDir       string
	gateTimeout   time.Duration
	maxOutputSize int
}

// NewRunner creates a Runner that executes gates in workDir. An empty
// workDir runs gates in the current working directory.
func NewRunner(workDir string) *Runner {
	return &Runner{
		workDir:       workDir,
		gateTimeout:   DefaultGateTimeout,
		maxOutputSize: DefaultMaxOutputSize,
	}
}

// SetGateTimeout overrides the per-gate timeout.
func (r *Runner) SetGateTimeout(d time.Duration) {
	if d > 0 {
		r.gateTimeout = d
	}
}

// SetMaxOutputSize overrides the captured output cap per gate.
func (r *Runner) SetMaxOutputSize(size int) {
	r.maxOutputSize = size
}

// Order returns the gates in canonical execution order: the recognized
// standard names first (types, lint, test, build), then everything else
// preserving the given insertion order.
func Order(gates []Gate) []Gate {
	byName := make(map[string]Gate, len(gates))
	for _, g := range gates {
		byName[g.Name] = g
	}

	ordered := make([]Gate, 0, len(gates))
	taken := make(map[string]bool, len(standardOrder))
	for _, name := range standardOrder {
		if g, ok := byName[name]; ok {
			ordered = append(ordered, g)
			taken[name] = true
		}
	}
	for _, g := range gates {
		if !taken[g.Name] {
			ordered = append(ordered, g)
		}
	}
	return ordered
}

// Run executes the given gates sequentially in canonical order and
// aggregates the results. Execution continues past failures so every
// gate's output is available for reporting. A command that cannot be
// spawned at all is recorded as a failed gate, never a fatal error:
// verification failure is always recoverable at this layer.
func (r *Runner) Run(ctx context.Context, gates []Gate) QualityGateResult {
	ordered := Order(gates)

	result := QualityGateResult{
		AllPassed: true,
		Results:   make([]GateResult, 0, len(ordered)),
	}

	for _, g := range ordered {
		gr := r.runGate(ctx, g)
		result.Results = append(result.Results, gr)
		if !gr.Passed {
			result.AllPassed = false
			result.FailedGates = append(result.FailedGates, gr.Name)
		}
	}

	return result
}

// runGate executes one gate command via the shell and captures combined
// output. Exit code 0 is a pass; anything else, including spawn failures
// and timeouts, is a fail.
func (r *Runner) runGate(ctx context.Context, g Gate) GateResult {
	gateCtx, cancel := context.WithTimeout(ctx, r.gateTimeout)
	defer cancel()

	cmd := exec.CommandContext(gateCtx, "sh", "-c", g.Command)
	if r.workDir != "" {
		cmd.Dir = r.workDir
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()

	out := r.truncate(output.String())
	if err != nil && gateCtx.Err() == context.DeadlineExceeded {
		out += "\n... [gate timed out]"
	} else if err != nil && output.Len() == 0 {
		// Spawn failure or similar: keep the reason visible.
		out = err.Error()
	}

	return GateResult{
		Name:   g.Name,
		Passed: err == nil,
		Output: out,
	}
}

func (r *Runner) truncate(out string) string {
	if r.maxOutputSize <= 0 || len(out) <= r.maxOutputSize {
		return out
	}
	return out[:r.maxOutputSize] + "\n... [output truncated]"
}
