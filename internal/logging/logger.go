package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ac-freeman/open-accountability/internal/security"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how much the agent logs.
type Config struct {
	Level      string
	File       string // empty disables the rotating file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Component  string
	Console    io.Writer // defaults to os.Stderr
}

// FlushCloser is implemented by hooks that buffer entries.
type FlushCloser interface {
	Flush() error
	Close() error
}

// Logger is the process logger plus the resources behind it.
type Logger struct {
	*logrus.Logger

	RunID     string
	Sanitizer *security.LogSanitizer

	file  *lumberjack.Logger
	sinks []FlushCloser
}

// New builds the process logger. Every entry passes through a sanitizing hook
// before any other hook or output sees it.
func New(cfg Config) (*Logger, error) {
	level := logrus.InfoLevel
	if name := strings.ToLower(strings.TrimSpace(cfg.Level)); name != "" {
		parsed, err := logrus.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	component := cfg.Component
	if component == "" {
		component = "open-accountability"
	}
	runID := uuid.New().String()

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&Formatter{Labels: map[string]string{
		"component": component,
		"run_id":    runID,
	}})

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	logger := &Logger{
		Logger:    l,
		RunID:     runID,
		Sanitizer: security.NewLogSanitizer(),
	}

	if cfg.File != "" {
		logger.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		l.SetOutput(io.MultiWriter(console, logger.file))
	} else {
		l.SetOutput(console)
	}

	l.AddHook(NewSanitizeHook(logger.Sanitizer))

	return logger, nil
}

// AddSink registers a hook that also needs flushing and closing at shutdown.
func (l *Logger) AddSink(hook logrus.Hook) {
	l.AddHook(hook)
	if fc, ok := hook.(FlushCloser); ok {
		l.sinks = append(l.sinks, fc)
	}
}

// Flush flushes buffered sinks.
func (l *Logger) Flush() error {
	var errs []error
	for _, s := range l.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and releases every sink and the log file.
func (l *Logger) Close() error {
	var errs []error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.sinks = nil
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
		l.file = nil
	}
	return errors.Join(errs...)
}
