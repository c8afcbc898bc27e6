// Package feedback renders console output for the run: iteration
// headers, gate results, a spinner while the agent works, and the
// final run summary. It is presentation only; nothing here affects
// loop decisions.
package feedback

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Console writes styled feedback to a single writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	spinnerOn   bool
	spinnerStop chan struct{}
	spinnerDone chan struct{}
}

// NewConsole creates a Console writing to out. If spinner is false the
// spinner methods are no-ops.
func NewConsole(out io.Writer, spinner bool) *Console {
	return &Console{out: out, spinnerOn: spinner}
}

// Header prints a bold run header.
func (c *Console) Header(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, styleHeader.Render(text))
}

// Info prints a plain line.
func (c *Console) Info(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Success prints a green line.
func (c *Console) Success(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, styleSuccess.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a yellow line.
func (c *Console) Warn(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, styleWarning.Render(fmt.Sprintf(format, args...)))
}

// Error prints a red line.
func (c *Console) Error(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, styleFailure.Render(fmt.Sprintf(format, args...)))
}

// Muted prints a dim line.
func (c *Console) Muted(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, styleMuted.Render(fmt.Sprintf(format, args...)))
}

// StartSpinner begins an animated spinner with the given label. It is
// a no-op when the spinner is disabled or already running.
func (c *Console) StartSpinner(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.spinnerOn || c.spinnerStop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.spinnerStop = stop
	c.spinnerDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-stop:
				fmt.Fprintf(c.out, "\r%s\r", strings.Repeat(" ", len(label)+2))
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s %s", spinnerFrames[i%len(spinnerFrames)], label)
				i++
			}
		}
	}()
}

// StopSpinner stops the spinner and clears its line. Safe to call when
// no spinner is running.
func (c *Console) StopSpinner() {
	c.mu.Lock()
	stop, done := c.spinnerStop, c.spinnerDone
	c.spinnerStop, c.spinnerDone = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Summary holds the run outcome for rendering.
type Summary struct {
	StopReason          string
	IterationsCompleted int
	TasksCompleted      int
	TasksTotal          int
	Duration            time.Duration
	ArchivedTo          string
}

// RenderSummary prints the boxed end-of-run summary.
func (c *Console) RenderSummary(s Summary) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stop reason: %s\n", s.StopReason)
	fmt.Fprintf(&sb, "Iterations:  %d\n", s.IterationsCompleted)
	fmt.Fprintf(&sb, "Tasks:       %d/%d completed\n", s.TasksCompleted, s.TasksTotal)
	fmt.Fprintf(&sb, "Duration:    %s", s.Duration.Round(time.Second))
	if s.ArchivedTo != "" {
		fmt.Fprintf(&sb, "\nArchived:    %s", s.ArchivedTo)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, styleSummaryBox.Render(sb.String()))
}
