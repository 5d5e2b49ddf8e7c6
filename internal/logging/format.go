// Package logging configures the agent's structured logger. Entries are JSON
// objects in the Cloud Logging structured format (severity, message, timestamp,
// labels) so the same lines can be read locally or shipped as-is.
package logging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// LogEntry is one structured log line.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// SeverityOf maps a logrus level to its Cloud Logging severity.
func SeverityOf(level logrus.Level) Severity {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return SeverityDebug
	case logrus.InfoLevel:
		return SeverityInfo
	case logrus.WarnLevel:
		return SeverityWarning
	case logrus.ErrorLevel:
		return SeverityError
	case logrus.FatalLevel, logrus.PanicLevel:
		return SeverityCritical
	default:
		return SeverityDefault
	}
}

// EntryFrom converts a logrus entry, attaching labels. Error values in the
// entry's fields are rendered as their message.
func EntryFrom(e *logrus.Entry, labels map[string]string) LogEntry {
	entry := LogEntry{
		Severity:  SeverityOf(e.Level),
		Message:   e.Message,
		Timestamp: e.Time.UTC(),
		Labels:    labels,
	}
	if len(e.Data) > 0 {
		entry.Fields = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			switch val := v.(type) {
			case error:
				entry.Fields[k] = val.Error()
			case time.Duration:
				entry.Fields[k] = val.String()
			default:
				entry.Fields[k] = v
			}
		}
	}
	return entry
}

// Formatter renders logrus entries as LogEntry JSON lines.
type Formatter struct {
	Labels map[string]string
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(e *logrus.Entry) ([]byte, error) {
	data, err := json.Marshal(EntryFrom(e, f.Labels))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(data, '\n'), nil
}
