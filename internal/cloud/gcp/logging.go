package gcp

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/logging"
	applog "github.com/ac-freeman/open-accountability/internal/logging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// DefaultLogID is the Cloud Logging log name used when none is configured.
const DefaultLogID = "open-accountability"

type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

type closer interface {
	Close() error
}

// CloudHook ships log entries to Cloud Logging. It implements logrus.Hook
// and the Flush/Close pair the process logger calls at shutdown.
type CloudHook struct {
	mu     sync.Mutex
	logger entryLogger
	client closer
	closed bool
}

// NewCloudHook connects to Cloud Logging for projectID. labels are attached to
// every entry.
func NewCloudHook(ctx context.Context, projectID, logID string, labels map[string]string, opts ...option.ClientOption) (*CloudHook, error) {
	if projectID == "" {
		return nil, fmt.Errorf("cloud logging requires a project ID")
	}
	if logID == "" {
		logID = DefaultLogID
	}

	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}
	return &CloudHook{
		logger: client.Logger(logID, logging.CommonLabels(labels)),
		client: client,
	}, nil
}

// Levels implements logrus.Hook.
func (h *CloudHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. Log is asynchronous; entries are buffered by
// the client until Flush.
func (h *CloudHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	entry := applog.EntryFrom(e, nil)
	h.logger.Log(logging.Entry{
		Timestamp: entry.Timestamp,
		Severity:  logging.ParseSeverity(string(entry.Severity)),
		Payload: map[string]interface{}{
			"message": entry.Message,
			"fields":  entry.Fields,
		},
	})
	return nil
}

// Flush sends buffered entries.
func (h *CloudHook) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	return h.logger.Flush()
}

// Close flushes and closes the client. Later entries are dropped.
func (h *CloudHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.client != nil {
		return h.client.Close()
	}
	return h.logger.Flush()
}
