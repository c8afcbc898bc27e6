// Package guard prevents the system from sleeping during long runs.
//
// It spawns a platform-specific inhibitor process: caffeinate on macOS,
// systemd-inhibit on Linux. Other platforms get a no-op guard. Stop
// terminates the inhibitor and restores normal sleep behaviour.
package guard

import (
	"os/exec"
	"runtime"
)

// SleepGuard keeps the system awake while active.
type SleepGuard struct {
	cmd    *exec.Cmd
	method string
}

// Disabled returns a guard that does nothing.
func Disabled() *SleepGuard {
	return &SleepGuard{method: "none"}
}

// Start spawns a sleep inhibitor process. If no inhibitor is available
// or it fails to spawn, the returned guard is inactive; that is not an
// error.
func Start() *SleepGuard {
	name, args := inhibitorCommand()
	if name == "" {
		return Disabled()
	}

	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return Disabled()
	}

	return &SleepGuard{cmd: cmd, method: name}
}

// Active reports whether sleep prevention is in effect.
func (g *SleepGuard) Active() bool {
	return g.cmd != nil
}

// Method returns the name of the inhibitor in use, or "none".
func (g *SleepGuard) Method() string {
	return g.method
}

// Stop terminates the inhibitor process. Safe to call on an inactive
// guard and safe to call more than once.
func (g *SleepGuard) Stop() {
	if g.cmd == nil {
		return
	}
	_ = g.cmd.Process.Kill()
	_ = g.cmd.Wait()
	g.cmd = nil
	g.method = "none"
}

func inhibitorCommand() (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("caffeinate"); err != nil {
			return "", nil
		}
		return "caffeinate", []string{"-i"}
	case "linux":
		if _, err := exec.LookPath("systemd-inhibit"); err != nil {
			return "", nil
		}
		return "systemd-inhibit", []string{
			"--what=sleep:idle",
			"--who=afk",
			"--why=autonomous coding session in progress",
			"--mode=block",
			"sleep", "infinity",
		}
	default:
		return "", nil
	}
}
