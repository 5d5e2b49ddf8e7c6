// Package controller wires the agent together and drives one run: establish
// the device session, check the service descriptor, monitor until cancelled,
// then sign off.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ac-freeman/open-accountability/internal/analyzer"
	"github.com/ac-freeman/open-accountability/internal/api"
	"github.com/ac-freeman/open-accountability/internal/capture"
	"github.com/ac-freeman/open-accountability/internal/cloud/gcp"
	"github.com/ac-freeman/open-accountability/internal/config"
	"github.com/ac-freeman/open-accountability/internal/device"
	"github.com/ac-freeman/open-accountability/internal/events"
	"github.com/ac-freeman/open-accountability/internal/identity"
	"github.com/ac-freeman/open-accountability/internal/monitor"
	"github.com/ac-freeman/open-accountability/internal/ocr"
	"github.com/ac-freeman/open-accountability/internal/pairing"
	"github.com/ac-freeman/open-accountability/internal/session"
	"github.com/ac-freeman/open-accountability/internal/tamper"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

const (
	// ExitTimeout bounds the sign-off after the loop stops. The run context
	// is already cancelled at that point, so the exit gets its own.
	ExitTimeout = 30 * time.Second

	// ShutdownTimeout bounds the whole graceful shutdown sequence.
	ShutdownTimeout = 15 * time.Second

	// LogFlushTimeout bounds flushing buffered log sinks.
	LogFlushTimeout = 5 * time.Second
)

// ShutdownHook runs during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// Runner is the monitoring loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Components are the collaborators a Controller drives. New builds them from
// configuration; tests assemble them directly.
type Components struct {
	Session  *session.Session
	Guard    *tamper.Guard
	Detector *tamper.ShutdownDetector
	Loop     Runner
	Logger   logrus.FieldLogger

	// ResourceInterval is the memory check period; zero disables the check.
	ResourceInterval time.Duration
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Controller runs the agent once from startup to sign-off.
type Controller struct {
	session  *session.Session
	guard    *tamper.Guard
	detector *tamper.ShutdownDetector
	loop     Runner
	logger   logrus.FieldLogger

	resourceInterval time.Duration
	memStat          func(ctx context.Context) (*mem.VirtualMemoryStat, error)

	shutdownHooks []ShutdownHook
	logFlushFn    func() error
	shutdownOnce  sync.Once
}

// NewWithComponents creates a controller around prebuilt collaborators.
func NewWithComponents(c Components) (*Controller, error) {
	if c.Session == nil || c.Guard == nil || c.Loop == nil {
		return nil, errors.New("controller: session, guard and loop are required")
	}
	if c.Detector == nil {
		c.Detector = tamper.NewShutdownDetector(nil)
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return &Controller{
		session:          c.Session,
		guard:            c.Guard,
		detector:         c.Detector,
		loop:             c.Loop,
		logger:           c.Logger,
		resourceInterval: c.ResourceInterval,
		memStat:          mem.VirtualMemoryWithContext,
	}, nil
}

// New builds every collaborator from cfg. The identity API key comes from
// configuration or, failing that, from Secret Manager.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Controller, error) {
	var closers []namedCloser
	fail := func(err error) (*Controller, error) {
		for _, nc := range closers {
			_ = nc.c.Close()
		}
		return nil, err
	}

	var secrets gcp.SecretFetcher
	if cfg.Identity.APIKey == "" && cfg.Identity.APIKeySecret != "" {
		sm, err := gcp.NewSecretManagerClient(ctx, cfg.Identity.Project)
		if err != nil {
			return fail(err)
		}
		secrets = sm
		closers = append(closers, namedCloser{"secret manager client", sm})
	}
	apiKey, err := gcp.ResolveAPIKey(ctx, secrets, cfg.Identity.APIKey, cfg.Identity.APIKeySecret)
	if err != nil {
		return fail(err)
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}

	idOpts := []identity.Option{identity.WithHTTPClient(httpClient)}
	if cfg.Identity.TokenURL != "" {
		idOpts = append(idOpts, identity.WithTokenURL(cfg.Identity.TokenURL))
	}
	idClient, err := identity.NewClient(apiKey, idOpts...)
	if err != nil {
		return fail(err)
	}

	backend, err := api.NewClient(cfg.API.BaseURL, idClient,
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger.WithField("component", "api")))
	if err != nil {
		return fail(err)
	}

	var pairer pairing.Provider
	switch cfg.Pairing.Mode {
	case config.PairingTerminal:
		pairer = pairing.NewTerminalProvider()
	default:
		pairer = pairing.NewWebProvider(pairing.WebConfig{
			Listen:      cfg.Pairing.Listen,
			OpenBrowser: cfg.Pairing.OpenBrowser,
			APIKey:      apiKey,
		}, logger.WithField("component", "pairing"))
	}

	sess := session.New(device.NewStore(cfg.Device.RecordPath), backend, idClient, pairer,
		session.WithLogger(logger.WithField("component", "session")))
	guard := tamper.NewGuard(cfg.Service.UnitPath, sess, logger.WithField("component", "tamper"))

	engine, err := ocr.New(ocr.Config{
		Engine:   cfg.OCR.Engine,
		Binary:   cfg.OCR.Binary,
		Language: cfg.OCR.Language,
		DPI:      cfg.OCR.DPI,
	})
	if err != nil {
		return fail(err)
	}
	if c, ok := engine.(io.Closer); ok {
		closers = append(closers, namedCloser{"ocr engine", c})
	}

	an := analyzer.New(engine, analyzer.Config{
		SliceHeight:    cfg.Analyzer.SliceHeight,
		ThrottleFactor: cfg.Analyzer.ThrottleFactor,
	}, logger.WithField("component", "analyzer"))

	loopOpts := []monitor.Option{monitor.WithLogger(logger.WithField("component", "monitor"))}
	if cfg.Events.JournalDir != "" {
		journal, err := events.NewJournal(cfg.Events.JournalDir)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, namedCloser{"cycle journal", journal})
		loopOpts = append(loopOpts, monitor.WithRecorder(journal))
	}

	loop := monitor.New(monitor.Config{
		MinSleep: cfg.Monitor.MinSleep,
		MaxSleep: cfg.Monitor.MaxSleep,
	}, backend, sess.Device(), capture.NewScreenSource(), an, loopOpts...)

	c, err := NewWithComponents(Components{
		Session:          sess,
		Guard:            guard,
		Detector:         tamper.NewShutdownDetector(nil),
		Loop:             loop,
		Logger:           logger,
		ResourceInterval: cfg.Monitor.ResourceInterval,
	})
	if err != nil {
		return fail(err)
	}
	for _, nc := range closers {
		c.AddShutdownHook(closeHook(nc))
	}
	return c, nil
}

// Run establishes the device session, verifies the service descriptor and
// monitors until ctx is cancelled. The device then signs off: a forced exit
// when the host is shutting down, a graceful one otherwise.
//
// A cancelled ctx is a normal stop and Run returns nil.
func (c *Controller) Run(ctx context.Context) error {
	defer c.gracefulShutdown()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	if c.resourceInterval > 0 {
		go c.startResourceMonitor(monitorCtx)
	}

	if err := c.session.RestoreOrCreate(ctx); err != nil {
		c.abandon(err)
		return fmt.Errorf("establishing device session: %w", err)
	}

	// The guard signs the device off itself when the descriptor is tampered.
	if err := c.guard.VerifyServiceDescriptor(ctx); err != nil {
		return err
	}

	loopErr := c.loop.Run(ctx)
	switch {
	case loopErr == nil, errors.Is(loopErr, context.Canceled):
		c.logger.Info("Monitoring stopped")
		loopErr = nil
	case errors.Is(loopErr, api.ErrEntitlement):
		c.logger.WithError(loopErr).Error("Account is not entitled to monitoring")
	default:
		c.logger.WithError(loopErr).Error("Monitoring failed")
	}

	forced := c.detector.SystemShutdown()
	c.logger.WithField("forced", forced).Info("Signing device off")

	exitCtx, cancel := context.WithTimeout(context.Background(), ExitTimeout)
	defer cancel()
	if err := c.session.Exit(exitCtx, forced); err != nil {
		c.logger.WithError(err).Error("Device sign-off failed")
		return errors.Join(loopErr, err)
	}
	return loopErr
}

// abandon makes a best-effort graceful exit after a startup failure, provided
// a device was registered.
func (c *Controller) abandon(cause error) {
	id := c.session.Identity()
	if id.UUID == "" {
		c.logger.WithError(cause).Error("Startup failed before a device was registered")
		return
	}

	c.logger.WithError(cause).WithField("device_uuid", id.UUID).Error("Startup failed, signing device off")
	ctx, cancel := context.WithTimeout(context.Background(), ExitTimeout)
	defer cancel()
	if err := c.session.Exit(ctx, false); err != nil {
		c.logger.WithError(err).Warn("Best-effort sign-off failed")
	}
}
