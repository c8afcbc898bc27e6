package executor

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellExecutor(t *testing.T, script string, opts Options) *Executor {
	t.Helper()
	opts.Command = "sh"
	opts.Args = []string{"-c", script}
	if opts.PromptVia == "" {
		opts.PromptVia = "stdin"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	return New(opts)
}

func TestExecute_Continued(t *testing.T) {
	e := shellExecutor(t, "echo working on it", Options{})

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinued, res.Kind)
	assert.Contains(t, res.Output, "working on it")
	assert.Nil(t, res.Process)
}

func TestExecute_CompletionMarker(t *testing.T) {
	e := shellExecutor(t, "echo all done; echo AFK_COMPLETE", Options{})

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompletion, res.Kind)
}

func TestExecute_MarkerEndsLingeringAgent(t *testing.T) {
	e := shellExecutor(t, "echo AFK_COMPLETE; sleep 30", Options{})

	start := time.Now()
	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompletion, res.Kind)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecute_CustomMarker(t *testing.T) {
	e := shellExecutor(t, "echo FINISHED_EVERYTHING", Options{Markers: []string{"FINISHED_EVERYTHING"}})

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompletion, res.Kind)
}

func TestExecute_NonZeroExit(t *testing.T) {
	e := shellExecutor(t, "echo crashing >&2; exit 2", Options{})

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessError, res.Kind)
	assert.Contains(t, res.Detail, "exit status 2")
	assert.Contains(t, res.Output, "crashing")
}

func TestExecute_PromptViaStdin(t *testing.T) {
	e := shellExecutor(t, "cat", Options{PromptVia: "stdin"})

	res, err := e.Execute(context.Background(), "the whole prompt text")
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinued, res.Kind)
	assert.Contains(t, res.Output, "the whole prompt text")
}

func TestExecute_PromptViaArg(t *testing.T) {
	e := New(Options{
		Command:   "sh",
		Args:      []string{"-c", `echo "$0"`},
		PromptVia: "arg",
		WorkDir:   t.TempDir(),
	})

	res, err := e.Execute(context.Background(), "prompt-as-argument")
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinued, res.Kind)
	assert.Contains(t, res.Output, "prompt-as-argument")
}

func TestExecute_Timeout(t *testing.T) {
	e := shellExecutor(t, "sleep 30", Options{Timeout: 200 * time.Millisecond})

	start := time.Now()
	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, OutcomeProcessError, res.Kind)
	assert.Contains(t, res.Detail, "timeout")
}

func TestExecute_Stall(t *testing.T) {
	e := shellExecutor(t, "echo starting; sleep 30", Options{StallAfter: 300 * time.Millisecond})

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)

	assert.Equal(t, OutcomeStalled, res.Kind)
	assert.Contains(t, res.Detail, "no output")
	require.NotNil(t, res.Process)

	// AbortStalled returns only after the wait goroutine reaped the
	// process, so by now the pid is gone.
	AbortStalled(res)
	err = res.Process.Signal(syscall.Signal(0))
	assert.Error(t, err)
}

func TestExecute_ContextCancel(t *testing.T) {
	e := shellExecutor(t, "sleep 30", Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := e.Execute(ctx, "do the task")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, OutcomeProcessError, res.Kind)
	assert.Equal(t, "interrupted", res.Detail)
}

func TestExecute_SpawnFailure(t *testing.T) {
	e := New(Options{
		Command:   "definitely-not-a-real-binary-xyz",
		PromptVia: "stdin",
		WorkDir:   t.TempDir(),
	})

	_, err := e.Execute(context.Background(), "do the task")
	assert.Error(t, err)
}

func TestExecute_WritesLog(t *testing.T) {
	logsDir := t.TempDir()
	e := shellExecutor(t, "echo logged output", Options{LogsDir: logsDir})
	e.TaskID = "task-1"

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	require.NotEmpty(t, res.LogPath)
	assert.Contains(t, res.LogPath, "task-1")

	content, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "logged output")
}

func TestExecute_EchoWriters(t *testing.T) {
	var out, errBuf bytes.Buffer
	e := shellExecutor(t, "echo to-stdout; echo to-stderr >&2", Options{})
	e.echoOut = &out
	e.echoErr = &errBuf

	_, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "to-stdout")
	assert.Contains(t, errBuf.String(), "to-stderr")
}

func TestExecute_OnOutputCallback(t *testing.T) {
	var streamed atomic.Int64
	e := shellExecutor(t, "echo twelve chars", Options{
		OnOutput: func(n int) { streamed.Add(int64(n)) },
	})

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinued, res.Kind)
	assert.Equal(t, int64(len("twelve chars\n")), streamed.Load())
}

func TestExecute_OutputTruncated(t *testing.T) {
	e := shellExecutor(t, "yes x | head -n 1000", Options{})
	e.SetMaxOutputSize(100)

	res, err := e.Execute(context.Background(), "do the task")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "[output truncated]")
	assert.LessOrEqual(t, len(res.Output), 150)
}

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(5)

	n, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello... [output truncated]", b.String())
}

func TestGenerateLogFilename(t *testing.T) {
	name := generateLogFilename("fix login/flow")
	assert.True(t, strings.HasSuffix(name, ".log"))
	assert.NotContains(t, name, "/")
	assert.Contains(t, name, "fix-login-flow")

	assert.Contains(t, generateLogFilename(""), "agent")
}
