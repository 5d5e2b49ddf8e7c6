package identity

import (
	"errors"
	"fmt"
)

// ErrAuth matches every *AuthError via errors.Is.
var ErrAuth = errors.New("authentication failed")

// AuthError reports a failure to obtain or use a device identity: a rejected
// refresh credential, an unreachable identity provider, or a registration the
// remote service refused.
type AuthError struct {
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAuth) true for any AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }
