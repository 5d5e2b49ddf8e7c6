package tamper

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner runs a command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ShutdownDetector reports whether the host is powering off or rebooting,
// which decides whether an interrupted agent persists its tamper-exit token.
type ShutdownDetector struct {
	run     CommandRunner
	timeout time.Duration
}

// NewShutdownDetector creates a detector. A nil runner executes real commands.
func NewShutdownDetector(run CommandRunner) *ShutdownDetector {
	if run == nil {
		run = execRunner
	}
	return &ShutdownDetector{run: run, timeout: 5 * time.Second}
}

// SystemShutdown reports whether the host is going down. Errors from the
// probes count as "not shutting down".
func (d *ShutdownDetector) SystemShutdown() bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if out, err := d.run(ctx, "runlevel"); err == nil && haltingRunlevel(string(out)) {
		return true
	}
	if out, err := d.run(ctx, "systemctl", "is-system-running"); len(out) > 0 || err == nil {
		// is-system-running exits non-zero for every state but "running".
		if strings.TrimSpace(string(out)) == "stopping" {
			return true
		}
	}
	return false
}

// haltingRunlevel parses `runlevel` output ("<previous> <current>").
func haltingRunlevel(out string) bool {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return false
	}
	current := fields[len(fields)-1]
	return current == "0" || current == "6"
}
