package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nkmaster/afk-sub001/internal/source"
	"github.com/m0nkmaster/afk-sub001/internal/state"
)

const starterConfig = `# afk configuration
agent:
  command: claude
  args: ["--dangerously-skip-permissions", "-p"]
  prompt_via: arg

limits:
  max_iterations: 10
  max_task_failures: 3
  timeout_minutes: 120

gates:
  # types: npm run typecheck
  # lint: npm run lint
  # test: npm test
  # build: npm run build
  count_failures: true
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the .afk directory",
		Long:  "Create the .afk directory with a starter config and tasks file.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if err := state.EnsureAfkDir(workDir); err != nil {
		return err
	}

	configPath := state.ConfigFilePath(workDir)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", configPath)
	}

	tasksPath := state.TasksFilePath(workDir)
	if _, err := os.Stat(tasksPath); os.IsNotExist(err) {
		starter := []source.Task{
			{
				ID:          "task-1",
				Title:       "Describe your first task",
				Description: "Replace this with a standalone description the agent can act on.",
			},
		}
		if err := source.Write(tasksPath, starter); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", tasksPath)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "afk initialized. Edit .afk/tasks.yaml and run 'afk run'.")
	return nil
}
