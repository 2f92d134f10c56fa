package apiclient

import (
	"errors"
	"fmt"
)

// Kind classifies a failed backend call.
type Kind int

const (
	// Transient failures (network, timeout, 5xx, 408, 429) are retried.
	Transient Kind = iota + 1
	// Permanent failures (other 4xx, malformed request or response) are not.
	Permanent
	// CircuitOpen means the breaker rejected the call without touching the network.
	CircuitOpen
	// Canceled means the caller's context ended before the call completed.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case CircuitOpen:
		return "circuit_open"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is wrapped by every CircuitOpen error.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Error is the single error value the client returns once retry and
// breaker policy have been applied.
type Error struct {
	Kind       Kind
	Method     string
	Path       string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.Path)
	switch {
	case e.Kind == CircuitOpen:
		return fmt.Sprintf("%s not attempted: %v", msg, e.Err)
	case e.Attempts > 1:
		msg = fmt.Sprintf("%s failed after %d attempts", msg, e.Attempts)
	default:
		msg += " failed"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the classification of err, or 0 when err did not come
// from the client.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// classifyStatus maps a non-2xx status onto a Kind.
func classifyStatus(code int) Kind {
	switch {
	case code == 408 || code == 429:
		return Transient
	case code >= 400 && code < 500:
		return Permanent
	default:
		return Transient
	}
}
