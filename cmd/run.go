package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/m0nkmaster/afk-sub001/internal/archive"
	"github.com/m0nkmaster/afk-sub001/internal/config"
	"github.com/m0nkmaster/afk-sub001/internal/executor"
	"github.com/m0nkmaster/afk-sub001/internal/feedback"
	"github.com/m0nkmaster/afk-sub001/internal/gates"
	"github.com/m0nkmaster/afk-sub001/internal/guard"
	"github.com/m0nkmaster/afk-sub001/internal/ledger"
	"github.com/m0nkmaster/afk-sub001/internal/loop"
	"github.com/m0nkmaster/afk-sub001/internal/prompt"
	"github.com/m0nkmaster/afk-sub001/internal/source"
	"github.com/m0nkmaster/afk-sub001/internal/state"
)

func newRunCmd() *cobra.Command {
	var maxIterations int
	var untilComplete bool
	var timeoutMinutes int
	var resume bool
	var echo bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the iteration loop",
		Long:  "Execute the iteration loop until all tasks are done or a limit is reached.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, maxIterations, untilComplete, timeoutMinutes, resume, echo)
		},
	}

	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "maximum iterations to run (0 uses config default)")
	cmd.Flags().BoolVar(&untilComplete, "until-complete", false, "ignore the iteration budget and run until complete")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 0, "run timeout in minutes (0 uses config default)")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume the existing session instead of starting fresh")
	cmd.Flags().BoolVar(&echo, "echo", false, "echo agent output to the console")

	return cmd
}

func runRun(cmd *cobra.Command, maxIterations int, untilComplete bool, timeoutMinutes int, resume, echo bool) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if maxIterations > 0 {
		cfg.Limits.MaxIterations = maxIterations
	}
	if timeoutMinutes > 0 {
		cfg.Limits.TimeoutMinutes = timeoutMinutes
	}

	if err := state.EnsureAfkDir(workDir); err != nil {
		return fmt.Errorf("failed to create .afk directory: %w", err)
	}

	console := feedback.NewConsole(cmd.OutOrStdout(), cfg.Feedback.Spinner && !echo)

	var outputBytes atomic.Int64
	opts := executor.Options{
		Command:    cfg.Agent.Command,
		Args:       cfg.Agent.Args,
		PromptVia:  cfg.Agent.PromptVia,
		WorkDir:    workDir,
		LogsDir:    state.LogsDirPath(workDir),
		Markers:    cfg.Markers,
		Timeout:    time.Duration(cfg.Limits.TimeoutMinutes) * time.Minute,
		StallAfter: time.Duration(cfg.Limits.StallSeconds) * time.Second,
		OnOutput:   func(n int) { outputBytes.Add(int64(n)) },
	}
	if echo {
		opts.EchoOut = cmd.OutOrStdout()
		opts.EchoErr = cmd.ErrOrStderr()
	}
	exec := executor.New(opts)

	gateList := gatesFromConfig(cfg.Gates)
	var gateRunner loop.GateRunner
	if len(gateList) > 0 {
		gateRunner = gates.NewRunner(workDir)
	}

	var ledgerArchive *archive.LedgerArchive
	if cfg.Archive.Enabled {
		ledgerArchive = archive.NewLedgerArchive(state.ArchiveDirPath(workDir))
	}

	deps := loop.Deps{
		Source:   source.NewYAMLSource(state.TasksFilePath(workDir)),
		Executor: exec,
		Gates:    gateRunner,
		GateList: gateList,
		Store:    ledger.NewStore(state.ProgressFilePath(workDir)),
		Prompt:   prompt.NewBuilder(nil),
		Archive:  ledgerArchive,
		Console:  console,
		LogsDir:  state.LogsDirPath(workDir),
	}

	marker := ""
	if len(cfg.Markers) > 0 {
		marker = cfg.Markers[0]
	}
	controller := loop.NewController(deps, loop.Options{
		MaxIterations:     cfg.Limits.MaxIterations,
		MaxTaskFailures:   cfg.Limits.MaxTaskFailures,
		TimeoutMinutes:    cfg.Limits.TimeoutMinutes,
		MaxTaskIterations: cfg.Limits.MaxTaskIterations,
		UntilComplete:     untilComplete,
		Resume:            resume,
		CountGateFailures: cfg.Gates.CountFailures,
		CompletionMarker:  marker,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping...\n")
		cancel()
	}()

	sleepGuard := guard.Disabled()
	if cfg.Guard.PreventSleep {
		sleepGuard = guard.Start()
	}
	defer sleepGuard.Stop()

	console.Header("afk run")
	if sleepGuard.Active() {
		console.Muted("sleep prevention: %s", sleepGuard.Method())
	}

	summary, err := controller.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	console.Muted("agent output: %d KiB across %d iterations", outputBytes.Load()/1024, summary.IterationsCompleted)

	console.RenderSummary(feedback.Summary{
		StopReason:          string(summary.StopReason),
		IterationsCompleted: summary.IterationsCompleted,
		TasksCompleted:      summary.TasksCompleted,
		TasksTotal:          summary.TasksTotal,
		Duration:            time.Duration(summary.DurationSeconds * float64(time.Second)),
		ArchivedTo:          summary.ArchivedTo,
	})

	if summary.StopReason == loop.StopAiError {
		return fmt.Errorf("stopped after repeated agent failures")
	}
	return nil
}

// gatesFromConfig converts gate config into the ordered gate list.
func gatesFromConfig(cfg config.GatesConfig) []gates.Gate {
	var list []gates.Gate
	add := func(name, command string) {
		if command != "" {
			list = append(list, gates.Gate{Name: name, Command: command})
		}
	}
	add("types", cfg.Types)
	add("lint", cfg.Lint)
	add("test", cfg.Test)
	add("build", cfg.Build)
	for _, c := range cfg.Custom {
		add(c.Name, c.Command)
	}
	return gates.Order(list)
}
