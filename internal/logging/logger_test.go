package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingSink struct {
	fired   int
	flushed int
	closed  int
}

func (s *recordingSink) Levels() []logrus.Level  { return logrus.AllLevels }
func (s *recordingSink) Fire(*logrus.Entry) error { s.fired++; return nil }
func (s *recordingSink) Flush() error             { s.flushed++; return nil }
func (s *recordingSink) Close() error             { s.closed++; return nil }

func TestNew_WritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Console: &buf, Component: "test-agent"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.WithField("endpoint", "/api/event").WithField("elapsed", 1500*time.Millisecond).Warn("post failed")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
	}
	if entry.Severity != SeverityWarning {
		t.Errorf("Severity = %q, want %q", entry.Severity, SeverityWarning)
	}
	if entry.Message != "post failed" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Labels["component"] != "test-agent" {
		t.Errorf("component label = %q", entry.Labels["component"])
	}
	if entry.Labels["run_id"] != logger.RunID || logger.RunID == "" {
		t.Errorf("run_id label = %q, want %q", entry.Labels["run_id"], logger.RunID)
	}
	if entry.Fields["endpoint"] != "/api/event" {
		t.Errorf("endpoint field = %v", entry.Fields["endpoint"])
	}
	if entry.Fields["elapsed"] != "1.5s" {
		t.Errorf("elapsed field = %v, want 1.5s", entry.Fields["elapsed"])
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "chatty"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Sanitizer.AddSecret("super-secret-refresh")

	logger.WithError(errors.New("refresh super-secret-refresh rejected")).
		WithField("auth", "Bearer abcdefghijklmnop12345").
		Error("token exchange with super-secret-refresh failed")

	out := buf.String()
	if strings.Contains(out, "super-secret-refresh") {
		t.Errorf("secret leaked into log: %s", out)
	}
	if strings.Contains(out, "abcdefghijklmnop12345") {
		t.Errorf("bearer token leaked into log: %s", out)
	}
}

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.log")
	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf, File: path, MaxBackups: 3, MaxAgeDays: 3})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("starting up")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "starting up") {
		t.Errorf("log file contents = %q", data)
	}
}

func TestLogger_Sinks(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Console: &buf})
	sink := &recordingSink{}
	logger.AddSink(sink)

	logger.Info("one")
	logger.Info("two")
	_ = logger.Flush()
	_ = logger.Close()

	if sink.fired != 2 {
		t.Errorf("fired = %d, want 2", sink.fired)
	}
	if sink.flushed != 1 || sink.closed != 1 {
		t.Errorf("flushed = %d closed = %d, want 1 and 1", sink.flushed, sink.closed)
	}
}

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		level logrus.Level
		want  Severity
	}{
		{logrus.DebugLevel, SeverityDebug},
		{logrus.InfoLevel, SeverityInfo},
		{logrus.WarnLevel, SeverityWarning},
		{logrus.ErrorLevel, SeverityError},
		{logrus.FatalLevel, SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityOf(tt.level); got != tt.want {
			t.Errorf("SeverityOf(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
