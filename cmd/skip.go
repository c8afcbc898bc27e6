package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nkmaster/afk-sub001/internal/ledger"
	"github.com/m0nkmaster/afk-sub001/internal/state"
)

func newSkipCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "skip <task-id>",
		Short: "Mark a task as skipped",
		Long:  "Exclude a task from further attempts without deleting it from the source.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkip(cmd, args[0], reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "optional reason recorded against the task")

	return cmd
}

func runSkip(cmd *cobra.Command, taskID, reason string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	store := ledger.NewStore(state.ProgressFilePath(workDir))
	led, err := store.Load()
	if err != nil {
		return err
	}

	rec := led.Get(taskID)
	if rec == nil {
		return fmt.Errorf("task %q not found in ledger", taskID)
	}
	if rec.Status == ledger.StatusCompleted {
		return fmt.Errorf("task %q is already completed", taskID)
	}

	if reason == "" {
		reason = "skipped by user"
	}
	led.SetStatus(taskID, ledger.StatusSkipped, "user", reason)

	if err := store.Save(led); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %s skipped\n", taskID)
	return nil
}
