package config

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is matched by every *NotConfiguredError
var ErrNotConfigured = errors.New("claudesync is not configured")

// ErrInvalidLevel reports an unknown sync level
var ErrInvalidLevel = errors.New("invalid sync level")

// NotConfiguredError reports a missing or unusable configuration record.
type NotConfiguredError struct {
	Path string
	Err  error
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrNotConfigured, e.Path, e.Err)
}

func (e *NotConfiguredError) Unwrap() error { return e.Err }

func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// InvalidRemoteError reports a malformed or unreachable remote locator.
type InvalidRemoteError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InvalidRemoteError) Error() string {
	msg := fmt.Sprintf("invalid remote %q: %s", e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidRemoteError) Unwrap() error { return e.Err }
