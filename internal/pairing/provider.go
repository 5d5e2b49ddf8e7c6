// Package pairing obtains the refresh credential and device name for a
// device that has no identity yet.
package pairing

import (
	"context"
	"errors"
	"strings"
)

// Credential is what a completed pairing hands back.
type Credential struct {
	RefreshToken string `json:"refresh_token"`
	DeviceName   string `json:"device_name"`
}

// Validate reports whether both fields are present.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.RefreshToken) == "" {
		return errors.New("refresh token is required")
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		return errors.New("device name is required")
	}
	return nil
}

// Provider blocks until the operator completes pairing or ctx is cancelled.
type Provider interface {
	ObtainCredential(ctx context.Context) (Credential, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Credential, error)

// ObtainCredential calls f.
func (f ProviderFunc) ObtainCredential(ctx context.Context) (Credential, error) {
	return f(ctx)
}
