package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nkmaster/afk-sub001/internal/config"
	"github.com/m0nkmaster/afk-sub001/internal/feedback"
	"github.com/m0nkmaster/afk-sub001/internal/gates"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run the configured quality gates once",
		Long:  "Run the configured quality gates against the working directory and report results.",
		RunE:  runVerify,
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	gateList := gatesFromConfig(cfg.Gates)
	if len(gateList) == 0 {
		return fmt.Errorf("no quality gates configured")
	}

	console := feedback.NewConsole(cmd.OutOrStdout(), false)
	runner := gates.NewRunner(workDir)
	result := runner.Run(context.Background(), gateList)

	for _, g := range result.Results {
		if g.Passed {
			console.Success("PASS %s", g.Name)
		} else {
			console.Error("FAIL %s", g.Name)
			if g.Output != "" {
				console.Muted("%s", g.Output)
			}
		}
	}

	if !result.AllPassed {
		return fmt.Errorf("%d of %d gates failed", len(result.FailedGates), len(result.Results))
	}
	console.Success("all %d gates passed", len(result.Results))
	return nil
}
