package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/shirou/gopsutil/v3/host"
)

// TerminalProvider asks for the credential on the controlling terminal, for
// headless installs where no browser is available.
type TerminalProvider struct{}

// NewTerminalProvider creates a terminal pairing provider.
func NewTerminalProvider() *TerminalProvider { return &TerminalProvider{} }

// ObtainCredential implements Provider.
func (p *TerminalProvider) ObtainCredential(ctx context.Context) (Credential, error) {
	cred := Credential{DeviceName: DefaultDeviceName()}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Pair this device").
				Description("Paste the refresh token shown on your account page\nand choose a name for this computer."),

			huh.NewInput().
				Title("Refresh token").
				EchoMode(huh.EchoModePassword).
				Validate(required("refresh token")).
				Value(&cred.RefreshToken),

			huh.NewInput().
				Title("Device name").
				Validate(required("device name")).
				Value(&cred.DeviceName),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Credential{}, ctxErr
		}
		return Credential{}, fmt.Errorf("prompt cancelled: %w", err)
	}

	cred.RefreshToken = strings.TrimSpace(cred.RefreshToken)
	cred.DeviceName = strings.TrimSpace(cred.DeviceName)
	return cred, cred.Validate()
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

// DefaultDeviceName suggests the host name as the device name.
func DefaultDeviceName() string {
	info, err := host.Info()
	if err != nil || info.Hostname == "" {
		return ""
	}
	return info.Hostname
}
