// Package broker abstracts the message broker behind a synchronous,
// bounded-timeout send. Returning before the broker acknowledged the record
// is a contract violation for implementations.
package broker

import (
	"context"
	"errors"
	"fmt"
)

// Header is an optional key/value attached to a broker record.
type Header struct {
	Key   string
	Value []byte
}

// Client sends one record and blocks until the broker acknowledges it or the
// context expires.
type Client interface {
	Send(ctx context.Context, topic, key string, value []byte, headers ...Header) error
	Close() error
}

// ErrTimeout marks a send that exceeded its bounded timeout.
var ErrTimeout = errors.New("broker: send timed out")

// Error wraps a broker failure with a retryability flag.
type Error struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is worth retrying. Timeouts and transport
// errors are; anything explicitly marked non-retryable is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable
	}
	return true
}
