package tamper

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
)

// DefaultUnitPath is where the agent's systemd unit is installed.
const DefaultUnitPath = "/etc/systemd/system/open-accountability.service"

// Exiter signs the device off.
type Exiter interface {
	Exit(ctx context.Context, forced bool) error
}

// Guard verifies the installed service descriptor.
type Guard struct {
	unitPath string
	exiter   Exiter
	logger   logrus.FieldLogger
}

// NewGuard creates a guard for the unit at unitPath. exiter is called when
// tampering is found.
func NewGuard(unitPath string, exiter Exiter, logger logrus.FieldLogger) *Guard {
	if unitPath == "" {
		unitPath = DefaultUnitPath
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Guard{unitPath: unitPath, exiter: exiter, logger: logger}
}

// UnitPath returns the descriptor location.
func (g *Guard) UnitPath() string { return g.unitPath }

// Check reads and checks the descriptor without acting on the result.
func (g *Guard) Check() error {
	f, err := os.Open(g.unitPath)
	if err != nil {
		return &TamperError{Path: g.unitPath, Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := CheckDescriptor(f); err != nil {
		var te *TamperError
		if errors.As(err, &te) {
			te.Path = g.unitPath
		}
		return err
	}
	return nil
}

// VerifyServiceDescriptor checks the descriptor. On tampering the device is
// signed off immediately, without waiting for a graceful shutdown, and the
// *TamperError is returned.
func (g *Guard) VerifyServiceDescriptor(ctx context.Context) error {
	err := g.Check()
	if err == nil {
		g.logger.WithField("unit", g.unitPath).Debug("Service descriptor verified")
		return nil
	}

	g.logger.WithError(err).WithField("unit", g.unitPath).Error("Service descriptor tampered with, signing device off")
	if g.exiter != nil {
		if exitErr := g.exiter.Exit(ctx, false); exitErr != nil {
			g.logger.WithError(exitErr).Warn("Sign-off after tamper detection failed")
		}
	}
	return err
}
