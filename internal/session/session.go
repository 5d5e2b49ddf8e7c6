// Package session owns the device identity for the life of the process:
// restoring or pairing it at startup, proving clean shutdowns with a
// tamper-exit token, and signing off at exit.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ac-freeman/open-accountability/internal/api"
	"github.com/ac-freeman/open-accountability/internal/device"
	"github.com/ac-freeman/open-accountability/internal/identity"
	"github.com/ac-freeman/open-accountability/internal/pairing"
	"github.com/sirupsen/logrus"
)

// ErrTamperExitMismatch means the restored identity could not prove it shut
// down through the sanctioned path.
var ErrTamperExitMismatch = errors.New("tamper-exit token missing or rejected")

// Backend is the subset of the remote service a Session talks to.
type Backend interface {
	RegisterDevice(ctx context.Context, id *device.Identity) (*api.Response, error)
	NegotiateSafeExit(ctx context.Context, id *device.Identity) (*api.Response, error)
	VerifySafeExit(ctx context.Context, id *device.Identity) (*api.Response, error)
	NotifyOffline(ctx context.Context, id *device.Identity) (*api.Response, error)
}

// Session is not safe for concurrent use; the agent drives it from a single
// goroutine.
type Session struct {
	store     *device.Store
	backend   Backend
	refresher identity.Refresher
	pairer    pairing.Provider
	logger    logrus.FieldLogger

	id    device.Identity
	state State
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates an Unregistered session.
func New(store *device.Store, backend Backend, refresher identity.Refresher, pairer pairing.Provider, opts ...Option) *Session {
	s := &Session{
		store:     store,
		backend:   backend,
		refresher: refresher,
		pairer:    pairer,
		logger:    logrus.StandardLogger(),
		state:     Unregistered,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Identity returns a copy of the current device identity.
func (s *Session) Identity() device.Identity { return s.id }

// Device returns the live identity. Authenticated calls update its access
// token in place.
func (s *Session) Device() *device.Identity { return &s.id }

// RestoreOrCreate brings the session to Active. A persisted identity is
// resumed only if its tamper-exit token checks out; otherwise the same
// credential is registered as a new device. Without a record the operator
// is asked to pair. Either way a fresh tamper-exit token is negotiated and
// the record is rewritten without it.
func (s *Session) RestoreOrCreate(ctx context.Context) error {
	restored, err := s.store.Load()
	switch {
	case err == nil:
		if err := s.restore(ctx, restored); err != nil {
			return err
		}
	case errors.Is(err, device.ErrNoRecord):
		s.logger.Info("No device record found, starting pairing")
		if err := s.pair(ctx); err != nil {
			return err
		}
	default:
		s.logger.WithError(err).Warn("Device record unreadable, treating as tampered and re-pairing")
		if err := s.store.Remove(); err != nil {
			return fmt.Errorf("removing unreadable device record: %w", err)
		}
		if err := s.pair(ctx); err != nil {
			return err
		}
	}

	if err := s.NegotiateTamperExitToken(ctx); err != nil {
		return err
	}
	if err := s.Persist(false); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"device_uuid": s.id.UUID,
		"device_name": s.id.Name,
	}).Info("Device session active")
	return nil
}

func (s *Session) restore(ctx context.Context, restored device.Identity) error {
	s.id = restored
	s.id.AccessToken = ""
	if err := s.refreshAccessToken(ctx); err != nil {
		return err
	}
	s.state = Active

	err := s.VerifyTamperExitToken(ctx)
	if err == nil {
		s.logger.WithField("device_uuid", s.id.UUID).Info("Resumed device identity after clean shutdown")
		return nil
	}
	if !errors.Is(err, ErrTamperExitMismatch) {
		return err
	}

	s.logger.WithField("previous_uuid", s.id.UUID).Warn("Device was not shut down cleanly, registering a new identity")
	s.id.UUID = ""
	s.id.TamperExitToken = ""
	return s.Register(ctx)
}

func (s *Session) pair(ctx context.Context) error {
	cred, err := s.pairer.ObtainCredential(ctx)
	if err != nil {
		return fmt.Errorf("pairing: %w", err)
	}
	if err := cred.Validate(); err != nil {
		return &identity.AuthError{Op: "pairing", Err: err}
	}

	s.id = device.Identity{
		RefreshToken: cred.RefreshToken,
		Name:         cred.DeviceName,
	}
	if err := s.refreshAccessToken(ctx); err != nil {
		return err
	}
	return s.Register(ctx)
}

func (s *Session) refreshAccessToken(ctx context.Context) error {
	tok, err := s.refresher.Refresh(ctx, s.id.RefreshToken)
	if err != nil {
		return err
	}
	s.id.AccessToken = tok.Value
	s.id.AccessTokenExpiry = tok.ExpiresAt

	log := s.logger
	if !tok.ExpiresAt.IsZero() {
		log = log.WithField("expires_at", tok.ExpiresAt.UTC().Format(time.RFC3339))
	}
	log.Debug("Access token refreshed")
	return nil
}

// accessTokenUsable reports whether the current access token can still be
// sent. Tokens without a known expiry are trusted until the server rejects
// them.
func (s *Session) accessTokenUsable(now time.Time) bool {
	if s.id.AccessToken == "" {
		return false
	}
	tok := identity.AccessToken{Value: s.id.AccessToken, ExpiresAt: s.id.AccessTokenExpiry}
	return !tok.Expired(now)
}

// Register creates a new device record on the server for the current
// credential, refreshing the access token first when it is missing or
// expired. Anything but success is an *identity.AuthError, except an
// entitlement failure which surfaces unchanged.
func (s *Session) Register(ctx context.Context) error {
	s.state = Registering

	if !s.accessTokenUsable(time.Now()) {
		if err := s.refreshAccessToken(ctx); err != nil {
			return err
		}
	}

	resp, err := s.backend.RegisterDevice(ctx, &s.id)
	if err != nil {
		if errors.Is(err, api.ErrEntitlement) || errors.Is(err, identity.ErrAuth) {
			return err
		}
		return &identity.AuthError{Op: "register device", Err: err}
	}
	if !resp.OK() {
		return &identity.AuthError{
			Op:         "register device",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("registration rejected: %s", resp.Text()),
		}
	}

	uuid := resp.Text()
	if uuid == "" {
		return &identity.AuthError{Op: "register device", StatusCode: resp.StatusCode, Err: errors.New("empty device uuid")}
	}

	s.id.UUID = uuid
	s.state = Active
	s.logger.WithFields(logrus.Fields{
		"device_uuid": uuid,
		"device_name": s.id.Name,
	}).Info("Registered device")
	return nil
}

// NegotiateTamperExitToken obtains a one-time tamper-exit token and keeps it
// in memory only.
func (s *Session) NegotiateTamperExitToken(ctx context.Context) error {
	s.state = TamperPending

	resp, err := s.backend.NegotiateSafeExit(ctx, &s.id)
	if err != nil {
		if errors.Is(err, api.ErrEntitlement) || errors.Is(err, identity.ErrAuth) {
			return err
		}
		return &identity.AuthError{Op: "negotiate tamper-exit token", Err: err}
	}
	token := resp.Text()
	if !resp.OK() || token == "" {
		return &identity.AuthError{
			Op:         "negotiate tamper-exit token",
			StatusCode: resp.StatusCode,
			Err:        errors.New("no tamper-exit token issued"),
		}
	}

	s.id.TamperExitToken = token
	s.state = Active
	return nil
}

// VerifyTamperExitToken asks the server whether the restored tamper-exit
// token matches its record. An absent token fails without a network call.
func (s *Session) VerifyTamperExitToken(ctx context.Context) error {
	if s.id.TamperExitToken == "" {
		return ErrTamperExitMismatch
	}

	resp, err := s.backend.VerifySafeExit(ctx, &s.id)
	if err != nil {
		return err
	}
	if !resp.OK() {
		s.logger.WithField("status", resp.StatusCode).Debug("Tamper-exit token rejected")
		return ErrTamperExitMismatch
	}
	return nil
}

// Persist writes the identity to disk. The tamper-exit token is written only
// when includeTamperExitToken is set.
func (s *Session) Persist(includeTamperExitToken bool) error {
	if err := s.store.Save(s.id, includeTamperExitToken); err != nil {
		return fmt.Errorf("persisting device identity: %w", err)
	}
	return nil
}

// Exit signs the device off. A forced exit (the host is going down) keeps the
// record, tamper-exit token included, and makes no network call. Otherwise the
// server is told the device is going offline and the record is deleted.
func (s *Session) Exit(ctx context.Context, forced bool) error {
	s.state = Exiting

	if forced {
		s.logger.Info("Host is shutting down, persisting identity with tamper-exit token")
		return s.Persist(true)
	}

	if s.id.AccessToken != "" && !s.accessTokenUsable(time.Now()) {
		if err := s.refreshAccessToken(ctx); err != nil {
			s.logger.WithError(err).Warn("Expired access token could not be refreshed before sign-off")
		}
	}

	s.logger.Info("Posting offline notification")
	resp, err := s.backend.NotifyOffline(ctx, &s.id)
	if err != nil {
		return fmt.Errorf("notifying offline: %w", err)
	}
	if !resp.OK() {
		s.logger.WithField("status", resp.StatusCode).Warn("Offline notification not acknowledged")
	}

	if err := s.store.Remove(); err != nil {
		return fmt.Errorf("removing device record: %w", err)
	}
	s.logger.Info("Device record removed")
	return nil
}
