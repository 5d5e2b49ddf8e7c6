package logging

import (
	"errors"

	"github.com/ac-freeman/open-accountability/internal/security"
	"github.com/sirupsen/logrus"
)

// SanitizeHook scrubs credentials from the message and string fields of every
// entry. It must be registered before hooks that ship entries elsewhere.
type SanitizeHook struct {
	sanitizer *security.LogSanitizer
}

// NewSanitizeHook creates a hook backed by s.
func NewSanitizeHook(s *security.LogSanitizer) *SanitizeHook {
	return &SanitizeHook{sanitizer: s}
}

// Levels implements logrus.Hook.
func (h *SanitizeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *SanitizeHook) Fire(e *logrus.Entry) error {
	e.Message = h.sanitizer.Sanitize(e.Message)
	for k, v := range e.Data {
		switch val := v.(type) {
		case string:
			e.Data[k] = h.sanitizer.Sanitize(val)
		case error:
			e.Data[k] = errors.New(h.sanitizer.SanitizeError(val))
		}
	}
	return nil
}
