// Package tamper detects attempts to stop the agent from being restarted.
package tamper

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Required service directives. Later lines for the same key override earlier
// ones, as in systemd itself.
const (
	RestartDirective      = restartKey + "=" + restartValue
	RestartDelayDirective = restartDelayKey + "=" + restartDelayValue
)

const (
	restartKey        = "Restart"
	restartValue      = "always"
	restartDelayKey   = "RestartSec"
	restartDelayValue = "30s"
)

// ErrTampered matches every *TamperError via errors.Is.
var ErrTampered = errors.New("service descriptor tampered with")

// TamperError lists the required directives that were absent or overridden.
type TamperError struct {
	Path    string
	Missing []string
	Err     error // set when the descriptor could not be read
}

func (e *TamperError) Error() string {
	target := "service descriptor"
	if e.Path != "" {
		target = e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s unreadable: %v", target, e.Err)
	}
	return fmt.Sprintf("%s tampered with: missing %s", target, strings.Join(e.Missing, ", "))
}

func (e *TamperError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTampered) true for any TamperError.
func (e *TamperError) Is(target error) bool { return target == ErrTampered }

// CheckDescriptor scans a unit file and fails unless both required directives
// hold at end of file. Assignments are split on the first '=' with the key and
// value trimmed, so "Restart = no" overrides like "Restart=no" does. Comment
// lines are ignored.
func CheckDescriptor(r io.Reader) error {
	var restart, restartDelay bool

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case restartKey:
			restart = strings.TrimSpace(value) == restartValue
		case restartDelayKey:
			restartDelay = strings.TrimSpace(value) == restartDelayValue
		}
	}
	if err := scanner.Err(); err != nil {
		return &TamperError{Err: err}
	}

	var missing []string
	if !restart {
		missing = append(missing, RestartDirective)
	}
	if !restartDelay {
		missing = append(missing, RestartDelayDirective)
	}
	if len(missing) > 0 {
		return &TamperError{Missing: missing}
	}
	return nil
}
