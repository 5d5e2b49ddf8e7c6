// Package device holds the persisted identity record of this endpoint.
package device

import "time"

// DefaultRecordPath is where the identity record lives when no path is configured.
const DefaultRecordPath = "./.device"

// Identity is the device's authenticated identity as stored on disk.
type Identity struct {
	RefreshToken    string `json:"refresh_token"`
	AccessToken     string `json:"id_token"`
	UUID            string `json:"device_uuid"`
	Name            string `json:"device_name"`
	TamperExitToken string `json:"tamper_exit_token"`

	// AccessTokenExpiry is when AccessToken lapses; zero when unknown. It is
	// not persisted since a restored record always refreshes its token.
	AccessTokenExpiry time.Time `json:"-"`
}

// Redacted returns a copy safe to print: secrets are replaced by a marker that
// only reveals whether they were set.
func (id Identity) Redacted() Identity {
	id.RefreshToken = redact(id.RefreshToken)
	id.AccessToken = redact(id.AccessToken)
	id.TamperExitToken = redact(id.TamperExitToken)
	return id
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}
