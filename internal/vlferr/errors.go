// Package vlferr defines the station service's error taxonomy. Each
// variant is a distinct sentinel or typed error compared with errors.Is,
// never a bare string. Wrap keeps the sentinel matchable via %w; any
// underlying cause passed in its arguments becomes part of the message text.
package vlferr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", Sentinel) to add
// context while keeping errors.Is matching intact.
var (
	// InvalidFormat covers header parse failures, hash mismatches, and
	// truncated bodies.
	InvalidFormat = errors.New("invalid format")
	// IoError covers filesystem/transport short-reads and write failures.
	IoError = errors.New("io error")
	// NotFound covers resolve failures and paths not served.
	NotFound = errors.New("not found")
	// Denied covers requests rejected by the HTTP acceptance policy.
	Denied = errors.New("denied")
	// ConfigError covers unreadable/malformed configuration files.
	ConfigError = errors.New("config error")
)

// HttpNonOk wraps a non-200 response from a peer.
type HttpNonOk struct {
	Code int
}

func (e *HttpNonOk) Error() string {
	return fmt.Sprintf("peer responded with non-200 status %d", e.Code)
}

// NewHttpNonOk constructs an HttpNonOk error for the given status code.
func NewHttpNonOk(code int) error {
	return &HttpNonOk{Code: code}
}

// Wrap attaches a message to an existing sentinel, preserving errors.Is.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
