package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGlobalConfig points the XDG lookup at dir so tests never read the
// developer's real global config.
func stubGlobalConfig(t *testing.T, dir string) {
	t.Helper()
	origEnv, origHome := getEnv, userHomeDir
	getEnv = func(key string) string {
		if key == "XDG_CONFIG_HOME" {
			return dir
		}
		return ""
	}
	userHomeDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { getEnv, userHomeDir = origEnv, origHome })
}

func TestLoadConfig_Defaults(t *testing.T) {
	stubGlobalConfig(t, t.TempDir())
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultAgentCommand, cfg.Agent.Command)
	assert.Equal(t, DefaultPromptVia, cfg.Agent.PromptVia)
	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
	assert.Equal(t, DefaultMaxTaskFailures, cfg.Limits.MaxTaskFailures)
	assert.Equal(t, DefaultTimeoutMinutes, cfg.Limits.TimeoutMinutes)
	assert.Equal(t, DefaultMaxTaskIterations, cfg.Limits.MaxTaskIterations)
	assert.Equal(t, DefaultStallSeconds, cfg.Limits.StallSeconds)
	assert.True(t, cfg.Gates.CountFailures)
	assert.False(t, cfg.Gates.Configured())
	assert.True(t, cfg.Archive.Enabled)
	assert.True(t, cfg.Guard.PreventSleep)
	assert.Equal(t, []string{"<promise>COMPLETE</promise>", "AFK_COMPLETE", "AFK_STOP"}, cfg.Markers)
}

func TestLoadConfig_FromAfkDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".afk"), 0755))
	content := `
agent:
  command: my-agent
  args: ["-p"]
  prompt_via: stdin
limits:
  max_iterations: 25
gates:
  test: npm test
  custom:
    - name: e2e
      command: npm run e2e
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".afk", "afk.yaml"), []byte(content), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "my-agent", cfg.Agent.Command)
	assert.Equal(t, []string{"-p"}, cfg.Agent.Args)
	assert.Equal(t, "stdin", cfg.Agent.PromptVia)
	assert.Equal(t, 25, cfg.Limits.MaxIterations)
	// Unset limits keep defaults.
	assert.Equal(t, DefaultMaxTaskFailures, cfg.Limits.MaxTaskFailures)
	assert.Equal(t, "npm test", cfg.Gates.Test)
	require.Len(t, cfg.Gates.Custom, 1)
	assert.Equal(t, "e2e", cfg.Gates.Custom[0].Name)
	assert.True(t, cfg.Gates.Configured())
}

func TestLoadConfig_GlobalFallback(t *testing.T) {
	xdgDir := t.TempDir()
	stubGlobalConfig(t, xdgDir)
	require.NoError(t, os.MkdirAll(filepath.Join(xdgDir, "afk"), 0755))
	global := "agent:\n  command: global-agent\nlimits:\n  max_iterations: 42\n"
	require.NoError(t, os.WriteFile(filepath.Join(xdgDir, "afk", "config.yaml"), []byte(global), 0644))

	// No project config: the global one applies.
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "global-agent", cfg.Agent.Command)
	assert.Equal(t, 42, cfg.Limits.MaxIterations)
}

func TestLoadConfig_ProjectConfigWinsOverGlobal(t *testing.T) {
	xdgDir := t.TempDir()
	stubGlobalConfig(t, xdgDir)
	require.NoError(t, os.MkdirAll(filepath.Join(xdgDir, "afk"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(xdgDir, "afk", "config.yaml"),
		[]byte("agent:\n  command: global-agent\n"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".afk"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".afk", "afk.yaml"),
		[]byte("agent:\n  command: project-agent\n"), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "project-agent", cfg.Agent.Command)
}

func TestLoadConfigFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  max_iterations: 7\n"), 0644))

	cfg, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Limits.MaxIterations)
}

func TestLoadConfigFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty agent command", "agent:\n  command: \"\"\n", "agent.command"},
		{"bad prompt_via", "agent:\n  prompt_via: pipe\n", "prompt_via"},
		{"zero max_iterations", "limits:\n  max_iterations: 0\n", "max_iterations"},
		{"negative max_task_failures", "limits:\n  max_task_failures: -1\n", "max_task_failures"},
		{"zero timeout", "limits:\n  timeout_minutes: 0\n", "timeout_minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "afk.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadConfigFromPath(path)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGlobalConfigPath(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		orig := getEnv
		getEnv = func(key string) string {
			if key == "XDG_CONFIG_HOME" {
				return "/custom/config"
			}
			return ""
		}
		defer func() { getEnv = orig }()

		path, err := GlobalConfigPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/custom/config", "afk", "config.yaml"), path)
	})

	t.Run("falls back to home dir", func(t *testing.T) {
		origEnv, origHome := getEnv, userHomeDir
		getEnv = func(string) string { return "" }
		userHomeDir = func() (string, error) { return "/home/dev", nil }
		defer func() { getEnv, userHomeDir = origEnv, origHome }()

		path, err := GlobalConfigPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/home/dev", ".config", "afk", "config.yaml"), path)
	})
}
