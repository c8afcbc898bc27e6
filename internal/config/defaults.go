package config

const (
	// DefaultAgentCommand is the agent executable invoked each iteration.
	DefaultAgentCommand = "claude"

	// DefaultPromptVia routes the prompt as the final CLI argument.
	DefaultPromptVia = "arg"

	// DefaultMaxIterations bounds attempts in a single run.
	DefaultMaxIterations = 10

	// DefaultMaxTaskFailures is the failure count at which a task is
	// auto-skipped.
	DefaultMaxTaskFailures = 3

	// DefaultTimeoutMinutes bounds a single agent invocation.
	DefaultTimeoutMinutes = 120

	// DefaultMaxTaskIterations bounds attempts spent on one task in a
	// single run.
	DefaultMaxTaskIterations = 5

	// DefaultStallSeconds is how long agent output may stay silent
	// before the iteration is treated as stalled.
	DefaultStallSeconds = 120

	// DefaultArchiveDir is where completed session ledgers are moved,
	// relative to the .afk directory.
	DefaultArchiveDir = "archive"
)
