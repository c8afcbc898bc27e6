// Package prompt builds the per-iteration agent prompt.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m0nkmaster/afk-sub001/internal/gates"
	"github.com/m0nkmaster/afk-sub001/internal/source"
)

// IterationContext contains everything needed to build an iteration prompt.
type IterationContext struct {
	// Task is the task to implement.
	Task *source.Task

	// Learnings are discoveries recorded in earlier iterations of this
	// session, oldest first.
	Learnings []string

	// Iteration is the 1-based attempt number within the run.
	Iteration int

	// MaxIterations is the run's iteration budget.
	MaxIterations int

	// CompletedCount and TotalCount summarize overall progress.
	CompletedCount int
	TotalCount     int

	// Gates are the configured quality gate commands, in run order.
	Gates []gates.Gate

	// FailureOutput is the trimmed gate failure output from the previous
	// attempt at this task, present only on retries.
	FailureOutput string

	// CompletionMarker is the marker the agent emits when the task is
	// done.
	CompletionMarker string
}

// SizeOptions bounds the variable-size prompt sections.
type SizeOptions struct {
	// MaxLearningsBytes limits the session learnings section.
	MaxLearningsBytes int

	// MaxFailureBytes limits the previous-failure section.
	MaxFailureBytes int
}

// DefaultSizeOptions returns sensible default size options.
func DefaultSizeOptions() SizeOptions {
	return SizeOptions{
		MaxLearningsBytes: 4000,
		MaxFailureBytes:   2000,
	}
}

// Builder builds iteration prompts.
type Builder struct {
	opts SizeOptions
}

// NewBuilder creates a prompt builder. If opts is nil, defaults are used.
func NewBuilder(opts *SizeOptions) *Builder {
	if opts == nil {
		defaultOpts := DefaultSizeOptions()
		opts = &defaultOpts
	}
	return &Builder{opts: *opts}
}

// Build renders the full prompt for one iteration.
func (b *Builder) Build(ctx IterationContext) (string, error) {
	if ctx.Task == nil {
		return "", errors.New("task is required")
	}
	if ctx.CompletionMarker == "" {
		return "", errors.New("completion marker is required")
	}

	var sb strings.Builder

	sb.WriteString("# Autonomous Coding Session\n\n")
	sb.WriteString("You are an autonomous coding agent. Each iteration starts with a fresh context; this prompt is your only memory of the session.\n\n")

	fmt.Fprintf(&sb, "## Task: %s\n\n", ctx.Task.Title)
	if ctx.Task.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", ctx.Task.Description)
	}

	fmt.Fprintf(&sb, "## Progress\n- Iteration: %d/%d\n- Completed: %d/%d tasks\n\n",
		ctx.Iteration, ctx.MaxIterations, ctx.CompletedCount, ctx.TotalCount)

	if len(ctx.Learnings) > 0 {
		learnings := truncateWithMarker(strings.Join(ctx.Learnings, "\n"), b.opts.MaxLearningsBytes)
		sb.WriteString("## Session Learnings\n")
		sb.WriteString("Discoveries from earlier iterations (read carefully to avoid repeating mistakes):\n\n")
		sb.WriteString(learnings)
		sb.WriteString("\n\n")
	}

	if ctx.FailureOutput != "" {
		failure := truncateWithMarker(ctx.FailureOutput, b.opts.MaxFailureBytes)
		sb.WriteString("## Previous Attempt Failed\n")
		sb.WriteString("The last attempt at this task failed verification. Output:\n```\n")
		sb.WriteString(failure)
		sb.WriteString("\n```\n\n")
	}

	sb.WriteString("## Quality Gates\n")
	if len(ctx.Gates) > 0 {
		sb.WriteString("Before finishing, ALL of these must pass:\n")
		for _, g := range ctx.Gates {
			fmt.Fprintf(&sb, "- `%s`\n", g.Command)
		}
	} else {
		sb.WriteString("Run whatever quality checks your project requires (typecheck, lint, test).\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Instructions\n")
	sb.WriteString("1. Implement ONLY the task above. Do not work on other tasks.\n")
	sb.WriteString("2. Run the quality gates and fix any failures.\n")
	sb.WriteString("3. Commit your changes when the gates pass.\n")
	sb.WriteString("4. Record useful discoveries as lines starting with LEARNING: so future iterations benefit.\n\n")

	sb.WriteString("## Completion Signal\n")
	fmt.Fprintf(&sb, "When this task is fully implemented and the gates pass, include this exact marker in your final output:\n%s\n\n", ctx.CompletionMarker)
	sb.WriteString("If the task is not finished yet, end your response normally; a later iteration will resume it.\n")

	return sb.String(), nil
}

// truncateWithMarker truncates a string to maxBytes and adds a marker if truncated.
// If maxBytes is 0, no truncation is performed.
func truncateWithMarker(s string, maxBytes int) string {
	if maxBytes == 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "... [truncated]"
}
