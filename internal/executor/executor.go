// Package executor runs the coding agent subprocess for one iteration
// and classifies its outcome.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m0nkmaster/afk-sub001/internal/marker"
)

// OutcomeKind classifies how an agent invocation ended.
type OutcomeKind string

const (
	// OutcomeCompletion means a completion marker was seen in the output.
	OutcomeCompletion OutcomeKind = "completion"

	// OutcomeContinued means the agent exited cleanly without a marker.
	OutcomeContinued OutcomeKind = "continued"

	// OutcomeProcessError means the agent crashed, timed out, or was
	// interrupted. Detail carries the reason.
	OutcomeProcessError OutcomeKind = "process_error"

	// OutcomeStalled means the agent produced no output for the stall
	// window and is still running. Process carries the live handle so
	// the caller decides its fate.
	OutcomeStalled OutcomeKind = "stalled"
)

// Result is the classified outcome of one agent invocation.
type Result struct {
	Kind   OutcomeKind
	Detail string

	// Output is the captured combined output, bounded in size.
	Output string

	// LogPath is the raw output log for this invocation.
	LogPath string

	// Process is the still-running process, set only for OutcomeStalled.
	Process *os.Process

	// done receives the executor's own Wait result, set only for
	// OutcomeStalled so AbortStalled can wait for the single reaper.
	done <-chan error
}

// Executor spawns the agent subprocess. The zero value is not usable;
// use New.
type Executor struct {
	command   string
	args      []string
	promptVia string
	workDir   string
	logsDir   string
	markers   []string

	timeout    time.Duration
	stallAfter time.Duration

	// echoOut and echoErr mirror the agent's streams for the console.
	// Either may be nil.
	echoOut io.Writer
	echoErr io.Writer

	// onOutput is invoked with the size of each output chunk as it
	// streams. May be nil.
	onOutput func(n int)

	maxOutputSize int

	// TaskID is an optional task identifier included in log filenames.
	TaskID string
}

// Options configures an Executor.
type Options struct {
	Command   string
	Args      []string
	PromptVia string
	WorkDir   string
	LogsDir   string
	Markers   []string

	Timeout    time.Duration
	StallAfter time.Duration

	EchoOut io.Writer
	EchoErr io.Writer

	// OnOutput receives the byte count of each streamed output chunk.
	OnOutput func(n int)
}

// New creates an Executor. Markers default to marker.DefaultMarkers.
func New(opts Options) *Executor {
	markers := opts.Markers
	if len(markers) == 0 {
		markers = marker.DefaultMarkers
	}
	return &Executor{
		command:       opts.Command,
		args:          opts.Args,
		promptVia:     opts.PromptVia,
		workDir:       opts.WorkDir,
		logsDir:       opts.LogsDir,
		markers:       markers,
		timeout:       opts.Timeout,
		stallAfter:    opts.StallAfter,
		echoOut:       opts.EchoOut,
		echoErr:       opts.EchoErr,
		onOutput:      opts.OnOutput,
		maxOutputSize: 1024 * 1024,
	}
}

// SetMaxOutputSize overrides the captured output bound.
func (e *Executor) SetMaxOutputSize(n int) {
	e.maxOutputSize = n
}

// Execute runs the agent once with the given prompt and classifies the
// outcome. A detected completion marker ends the invocation even if the
// process is still running. On timeout the process group is killed; on
// context cancellation it receives SIGINT and the result is a process
// error. On stall the process is left running and returned to the
// caller.
func (e *Executor) Execute(ctx context.Context, prompt string) (*Result, error) {
	args := append([]string(nil), e.args...)
	if e.promptVia != "stdin" {
		args = append(args, prompt)
	}

	cmd := exec.Command(e.command, args...)
	cmd.Dir = e.workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if e.promptVia == "stdin" {
		cmd.Stdin = strings.NewReader(prompt)
	}

	logPath := ""
	var logFile *os.File
	if e.logsDir != "" {
		logPath = filepath.Join(e.logsDir, generateLogFilename(e.TaskID))
		f, err := os.Create(logPath)
		if err != nil {
			return nil, fmt.Errorf("create log file %s: %w", logPath, err)
		}
		logFile = f
		defer func() { _ = logFile.Close() }()
	}

	detector := marker.NewDetector(e.markers)
	markerSeen := make(chan struct{})
	var markerOnce sync.Once
	detect := writerFunc(func(p []byte) (int, error) {
		n, err := detector.Write(p)
		if detector.Detected() {
			markerOnce.Do(func() { close(markerSeen) })
		}
		return n, err
	})
	capture := newBoundedBuffer(e.maxOutputSize)
	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())
	activity := writerFunc(func(p []byte) (int, error) {
		lastActivity.Store(time.Now().UnixNano())
		if e.onOutput != nil {
			e.onOutput(len(p))
		}
		return len(p), nil
	})

	outSinks := []io.Writer{detect, capture, activity}
	errSinks := []io.Writer{capture, activity}
	if logFile != nil {
		outSinks = append(outSinks, logFile)
		errSinks = append(errSinks, logFile)
	}
	if e.echoOut != nil {
		outSinks = append(outSinks, e.echoOut)
	}
	if e.echoErr != nil {
		errSinks = append(errSinks, e.echoErr)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.command, err)
	}
	pgid := cmd.Process.Pid

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(outSinks...), stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(errSinks...), stderrPipe)
		return err
	})

	done := make(chan error, 1)
	go func() {
		pumpErr := g.Wait()
		waitErr := cmd.Wait()
		if waitErr == nil {
			waitErr = pumpErr
		}
		done <- waitErr
	}()

	var timeoutCh <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var stallTicker *time.Ticker
	var stallCh <-chan time.Time
	if e.stallAfter > 0 {
		stallTicker = time.NewTicker(e.stallAfter / 4)
		defer stallTicker.Stop()
		stallCh = stallTicker.C
	}

	for {
		select {
		case <-markerSeen:
			// The agent signaled completion; it may keep running, so
			// terminate the group rather than wait it out.
			killProcessGroup(pgid)
			<-done
			return &Result{Kind: OutcomeCompletion, Output: capture.String(), LogPath: logPath}, nil

		case waitErr := <-done:
			output := capture.String()
			if detector.Detected() {
				return &Result{Kind: OutcomeCompletion, Output: output, LogPath: logPath}, nil
			}
			if waitErr != nil {
				return &Result{
					Kind:    OutcomeProcessError,
					Detail:  waitErr.Error(),
					Output:  output,
					LogPath: logPath,
				}, nil
			}
			return &Result{Kind: OutcomeContinued, Output: output, LogPath: logPath}, nil

		case <-timeoutCh:
			killProcessGroup(pgid)
			<-done
			return &Result{
				Kind:    OutcomeProcessError,
				Detail:  fmt.Sprintf("timeout after %s", e.timeout),
				Output:  capture.String(),
				LogPath: logPath,
			}, nil

		case <-ctx.Done():
			interruptProcessGroup(pgid)
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				killProcessGroup(pgid)
				<-done
			}
			return &Result{
				Kind:    OutcomeProcessError,
				Detail:  "interrupted",
				Output:  capture.String(),
				LogPath: logPath,
			}, nil

		case <-stallCh:
			idle := time.Since(time.Unix(0, lastActivity.Load()))
			if idle >= e.stallAfter {
				return &Result{
					Kind:    OutcomeStalled,
					Detail:  fmt.Sprintf("no output for %s", idle.Round(time.Second)),
					Output:  capture.String(),
					LogPath: logPath,
					Process: cmd.Process,
					done:    done,
				}, nil
			}
		}
	}
}

// AbortStalled kills the process group of a stalled result and waits for
// the executor's wait goroutine to reap it. Reaping stays in one place;
// calling Wait here as well would race it.
func AbortStalled(res *Result) {
	if res == nil || res.Process == nil {
		return
	}
	killProcessGroup(res.Process.Pid)
	if res.done != nil {
		<-res.done
	}
}

func interruptProcessGroup(pgid int) {
	_ = syscall.Kill(-pgid, syscall.SIGINT)
}

func killProcessGroup(pgid int) {
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// writerFunc adapts a function to io.Writer.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// boundedBuffer captures up to max bytes and drops the rest.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "... [output truncated]"
	}
	return b.buf.String()
}

var invalidFilenameChars = regexp.MustCompile(`[/\\:*?"<>|\s]`)

// generateLogFilename creates a unique log filename with timestamp and task ID.
func generateLogFilename(taskID string) string {
	timestamp := time.Now().Format("20060102-150405")
	if taskID == "" {
		taskID = "agent"
	}
	safeTaskID := invalidFilenameChars.ReplaceAllString(taskID, "-")
	return fmt.Sprintf("%s-%s.log", timestamp, safeTaskID)
}
