package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nkmaster/afk-sub001/internal/ledger"
	"github.com/m0nkmaster/afk-sub001/internal/state"
)

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Reset a failed task back to pending",
		Long:  "Clear a failed task's failure count so the loop attempts it again.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRetry,
	}
}

func runRetry(cmd *cobra.Command, args []string) error {
	taskID := args[0]

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
	if !led.ResetTask(taskID) {
		return fmt.Errorf("task %q is %s, only failed tasks can be retried", taskID, rec.Status)
	}

	if err := store.Save(led); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %s reset to pending\n", taskID)
	return nil
}
