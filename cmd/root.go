// Package cmd implements the afk CLI.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// GetConfigFile returns the config file path from the flag.
func GetConfigFile() string {
	return cfgFile
}

// NewRootCmd creates the root command for the afk CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "afk",
		Short: "Autonomous coding loop with fresh context per attempt",
		Long: `afk runs a coding agent in a loop: pick the next task, spawn the agent
with a fresh context, verify the result with quality gates, record progress,
repeat. The session ledger in .afk/progress.json is the only memory carried
between attempts.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .afk/afk.yaml)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRetryCmd())
	rootCmd.AddCommand(newSkipCmd())
	rootCmd.AddCommand(newVerifyCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
