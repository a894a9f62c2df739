// Package orchestrator wires every scheduling-core component into the single
// running process described in spec §4.L: a PID-guarded singleton that owns
// the Discord channel, the scheduler, the webhook listener, and the
// per-fire agent-runtime invocations. Single-instance detection is ported
// from the original program's main.py _check_already_running (a PID file
// under the state directory, checked against /proc/<pid>/cmdline).
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// acquireSingleton writes the current PID to pidFile, refusing to start if
// another live process already holds it.
func acquireSingleton(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return fmt.Errorf("orchestrator: create state dir: %w", err)
	}

	if data, err := os.ReadFile(pidFile); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && processAlive(pid) {
			return fmt.Errorf("orchestrator: already running (pid %d)", pid)
		}
	}

	return os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func releaseSingleton(pidFile string) {
	_ = os.Remove(pidFile)
}

// processAlive checks /proc/<pid>/cmdline for our own binary name, mirroring
// the original's cmdline substring check rather than relying solely on
// signal-0 (which would also be true for an unrelated process that reused
// the pid).
func processAlive(pid int) bool {
	cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}
	self, err := os.Executable()
	if err != nil {
		return true // can't verify; assume it's ours and refuse to start
	}
	return strings.Contains(string(cmdline), filepath.Base(self))
}
