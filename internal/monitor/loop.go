// Package monitor runs the capture, analyze and report cycle until the agent
// is told to stop.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/ac-freeman/open-accountability/internal/api"
	"github.com/ac-freeman/open-accountability/internal/capture"
	"github.com/ac-freeman/open-accountability/internal/device"
	"github.com/ac-freeman/open-accountability/internal/pause"
	"github.com/sirupsen/logrus"
)

// Defaults for Config.
const (
	DefaultMinSleep = 2 * time.Minute
	DefaultMaxSleep = 5 * time.Minute
)

// Config holds the loop timing.
type Config struct {
	MinSleep time.Duration
	MaxSleep time.Duration
	// Tick is how often the sleep between cycles checks for cancellation.
	Tick time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinSleep <= 0 {
		c.MinSleep = DefaultMinSleep
	}
	if c.MaxSleep < c.MinSleep {
		c.MaxSleep = c.MinSleep
	}
	if c.Tick <= 0 {
		c.Tick = pause.DefaultTick
	}
	return c
}

// Backend is the subset of the remote service the loop uses.
type Backend interface {
	FetchBlacklist(ctx context.Context, id *device.Identity) (api.KeywordTiers, error)
	PostEvent(ctx context.Context, id *device.Identity, report api.EventReport) (string, error)
}

// Analyzer counts blacklisted keywords in one frame.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, counts map[string]int) error
}

// CycleSummary describes one finished or aborted cycle.
type CycleSummary struct {
	Cycle     int             `json:"cycle"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Displays  int             `json:"displays"`
	Analyzed  int             `json:"analyzed"`
	Report    api.EventReport `json:"report"`
	Posted    bool            `json:"posted"`
	Error     string          `json:"error,omitempty"`
}

// Recorder receives a summary after every cycle.
type Recorder interface {
	RecordCycle(CycleSummary) error
}

// Loop is the monitoring loop.
type Loop struct {
	cfg      Config
	backend  Backend
	identity *device.Identity
	source   capture.Source
	analyzer Analyzer
	recorder Recorder
	logger   logrus.FieldLogger
}

// Option configures a Loop.
type Option func(*Loop)

// WithRecorder sets the cycle recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) {
		l.recorder = r
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a loop reporting as id. id's access token is refreshed in place
// by the backend when it expires.
func New(cfg Config, backend Backend, id *device.Identity, source capture.Source, analyzer Analyzer, opts ...Option) *Loop {
	l := &Loop{
		cfg:      cfg.withDefaults(),
		backend:  backend,
		identity: id,
		source:   source,
		analyzer: analyzer,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run cycles until ctx is cancelled. The blacklist is fetched at the start
// of the first cycle and again at the start of every cycle until a fetch
// succeeds; a failed fetch aborts only that cycle. Run never returns nil:
// the result is ctx.Err() after cancellation, or an entitlement error.
func (l *Loop) Run(ctx context.Context) error {
	var blacklist Blacklist

	for cycle := 1; ; cycle++ {
		err := l.runCycle(ctx, cycle, &blacklist)
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.logger.Info("Monitoring cancelled")
			return ctxErr
		}
		if errors.Is(err, api.ErrEntitlement) {
			return err
		}
		if err != nil {
			l.logger.WithError(err).WithField("cycle", cycle).Warn("Cycle aborted")
		}

		sleep := l.nextSleep()
		l.logger.WithFields(logrus.Fields{
			"cycle": cycle,
			"sleep": sleep,
		}).Debug("Sleeping until next cycle")
		if err := pause.For(ctx, sleep, l.cfg.Tick); err != nil {
			l.logger.Info("Monitoring cancelled during sleep")
			return err
		}
	}
}

func (l *Loop) runCycle(ctx context.Context, cycle int, blacklist *Blacklist) (err error) {
	summary := CycleSummary{Cycle: cycle, StartedAt: time.Now()}
	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		if err != nil {
			summary.Error = err.Error()
		}
		l.record(summary)
	}()

	log := l.logger.WithField("cycle", cycle)

	if *blacklist == nil {
		tiers, err := l.backend.FetchBlacklist(ctx, l.identity)
		if err != nil {
			return fmt.Errorf("fetching blacklist: %w", err)
		}
		*blacklist = NewBlacklist(tiers)
		log.WithField("keywords", len(*blacklist)).Info("Blacklist loaded")
	}

	blacklist.Reset()
	log.Debug("Starting cycle")

	displays, err := l.source.Displays()
	if err != nil {
		log.WithError(err).Warn("Failed to enumerate displays, skipping capture")
		displays = nil
	}
	summary.Displays = len(displays)

	for _, d := range displays {
		if err := ctx.Err(); err != nil {
			return err
		}
		dlog := log.WithField("display", d.Index())

		frame, err := d.Capture()
		if err != nil {
			dlog.WithError(err).Warn("Capture failed, skipping display")
			continue
		}
		img, err := capture.Decode(d.Index(), frame)
		if err != nil {
			dlog.WithError(err).Warn("Frame could not be decoded, skipping display")
			continue
		}

		start := time.Now()
		if err := l.analyzer.Analyze(ctx, img, *blacklist); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			dlog.WithError(err).Warn("Analysis failed, skipping display")
			continue
		}
		summary.Analyzed++
		dlog.WithField("elapsed", time.Since(start)).Debug("Display analyzed")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	report := blacklist.Report()
	summary.Report = report
	for kw, n := range report {
		log.WithFields(logrus.Fields{"keyword": kw, "count": n}).Info("Keyword matched")
	}

	reply, err := l.backend.PostEvent(ctx, l.identity, report)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	summary.Posted = true
	log.WithFields(logrus.Fields{
		"matches":  len(report),
		"response": reply,
	}).Info("Event posted")
	return nil
}

func (l *Loop) record(s CycleSummary) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordCycle(s); err != nil {
		l.logger.WithError(err).Warn("Failed to record cycle")
	}
}

func (l *Loop) nextSleep() time.Duration {
	span := l.cfg.MaxSleep - l.cfg.MinSleep
	if span <= 0 {
		return l.cfg.MinSleep
	}
	return l.cfg.MinSleep + time.Duration(rand.Int63n(int64(span+1)))
}
