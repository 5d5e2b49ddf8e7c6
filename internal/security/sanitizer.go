// Package security provides utilities for keeping credentials out of logs and
// for protecting the local pairing endpoint.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// Common patterns for sensitive data
var (
	// Bearer tokens
	bearerTokenPattern = regexp.MustCompile(`(?i)bearer[[:space:]]+([a-zA-Z0-9_\-\.]+)`)

	// JSON Web Tokens (identity provider ID tokens)
	jwtPattern = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)

	// Google API keys
	googleAPIKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)

	// Key/value pairs whose key names a credential, in JSON or query form
	credentialFieldPattern = regexp.MustCompile(`(?i)("?(?:refresh_token|id_token|tamper_exit_token|safe_exit_id|api_key|key)"?[[:space:]]*[:=][[:space:]]*"?)([^"&\s,}]{8,})`)

	// Passwords in URLs
	urlPasswordPattern = regexp.MustCompile(`(?i)(https?|ftp)://[^:/]+:([^@]+)@`)
)

// LogSanitizer removes credentials from log messages. Besides the built-in
// patterns it redacts exact secret values registered with AddSecret.
type LogSanitizer struct {
	mu      sync.RWMutex
	secrets []string
}

// NewLogSanitizer creates a new log sanitizer
func NewLogSanitizer() *LogSanitizer {
	return &LogSanitizer{}
}

// AddSecret registers a literal value that must never appear in logs.
// Values shorter than 6 characters are ignored to avoid mangling messages.
func (ls *LogSanitizer) AddSecret(secret string) {
	if len(secret) < 6 {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, s := range ls.secrets {
		if s == secret {
			return
		}
	}
	ls.secrets = append(ls.secrets, secret)
}

// Sanitize removes or masks sensitive information from a log message
func (ls *LogSanitizer) Sanitize(message string) string {
	ls.mu.RLock()
	for _, s := range ls.secrets {
		message = strings.ReplaceAll(message, s, "[REDACTED]")
	}
	ls.mu.RUnlock()

	message = bearerTokenPattern.ReplaceAllString(message, "Bearer [REDACTED]")
	message = jwtPattern.ReplaceAllString(message, "[REDACTED-JWT]")
	message = googleAPIKeyPattern.ReplaceAllString(message, "[REDACTED-API-KEY]")
	message = credentialFieldPattern.ReplaceAllString(message, "${1}[REDACTED]")
	message = urlPasswordPattern.ReplaceAllString(message, "${1}://[REDACTED]@")

	return message
}

// SanitizeError sanitizes error messages that might contain sensitive info
func (ls *LogSanitizer) SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return ls.Sanitize(err.Error())
}

// SanitizeMap sanitizes all values in a map (useful for labels/metadata)
func (ls *LogSanitizer) SanitizeMap(m map[string]string) map[string]string {
	sanitized := make(map[string]string, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = ls.Sanitize(v)
	}
	return sanitized
}

// isSensitiveKey checks if a key name suggests sensitive content
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	sensitiveKeywords := []string{
		"password", "secret", "token",
		"credential", "private", "bearer",
		"api_key", "apikey",
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}
