package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/m0nkmaster/afk-sub001/internal/feedback"
	"github.com/m0nkmaster/afk-sub001/internal/ledger"
	"github.com/m0nkmaster/afk-sub001/internal/source"
	"github.com/m0nkmaster/afk-sub001/internal/state"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session progress",
		Long:  "Show the session ledger: per-task status, failure counts, and iteration count.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	store := ledger.NewStore(state.ProgressFilePath(workDir))
	led, err := store.Load()
	if err != nil {
		return err
	}

	tasks, err := source.NewYAMLSource(state.TasksFilePath(workDir)).List()
	if err != nil {
		return err
	}

	console := feedback.NewConsole(cmd.OutOrStdout(), false)
	console.Header("afk status")

	if len(tasks) == 0 && len(led.Tasks) == 0 {
		console.Muted("no tasks configured (expected %s)", state.TasksFilePath(workDir))
		return nil
	}

	console.Info("session started: %s", led.StartedAt.Format(time.RFC3339))
	console.Info("iterations:      %d", led.Iterations)
	console.Info("")

	for _, t := range tasks {
		rec := led.Get(t.ID)
		status := ledger.StatusPending
		failures := 0
		message := ""
		if rec != nil {
			status = rec.Status
			failures = rec.FailureCount
			message = rec.Message
		}

		line := fmt.Sprintf("%-12s %-30s failures=%d", status, t.ID, failures)
		if message != "" {
			line += "  " + message
		}

		switch status {
		case ledger.StatusCompleted:
			console.Success("%s", line)
		case ledger.StatusFailed:
			console.Error("%s", line)
		case ledger.StatusSkipped:
			console.Warn("%s", line)
		default:
			console.Info("%s", line)
		}
	}

	console.Info("")
	console.Info("completed %d/%d, failed %d, skipped %d",
		led.CountByStatus(ledger.StatusCompleted), len(tasks),
		led.CountByStatus(ledger.StatusFailed),
		led.CountByStatus(ledger.StatusSkipped))

	return nil
}
