package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotConfigured is returned by every operation of a store whose endpoint or
// credentials are missing.
var ErrNotConfigured = errors.New("object storage is not configured")

// Kind classifies a store failure independently of the driver that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAccessDenied
	KindInvalidRange
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindInvalidRange:
		return "invalid_range"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is the tagged error every driver returns for a failed store call.
type Error struct {
	Op   string
	Key  string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a store error, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func newError(op, key string, kind Kind, err error) error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

// isNetwork reports transport-level failures shared by all HTTP-based drivers.
func isNetwork(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
