package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrEntitlement matches every *EntitlementError via errors.Is.
var ErrEntitlement = errors.New("no active entitlement")

// EntitlementError means the account behind the device has no active
// subscription. It is never retried.
type EntitlementError struct {
	Method string
	Path   string
}

func (e *EntitlementError) Error() string {
	return fmt.Sprintf("%s %s: account has no active subscription", e.Method, e.Path)
}

// Is makes errors.Is(err, ErrEntitlement) true for any EntitlementError.
func (e *EntitlementError) Is(target error) bool { return target == ErrEntitlement }

// NetworkError is a transport-level failure: no HTTP response was received.
type NetworkError struct {
	Method  string
	URL     string
	Elapsed time.Duration
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s failed after %s: %v", e.Method, e.URL, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is an HTTP response whose status the caller did not expect.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
