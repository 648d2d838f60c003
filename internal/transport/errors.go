package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind is the closed set of outcomes a transport call can produce.
type Kind int

const (
	// KindNone means the call succeeded.
	KindNone Kind = iota
	// KindRateLimited means the platform asked us to slow down for RetryAfter.
	KindRateLimited
	// KindForbidden means this identity has no rights on this source.
	KindForbidden
	// KindBanned means the identity itself was rejected by the platform.
	KindBanned
	// KindNetwork covers connection loss, DNS failure and timeouts.
	KindNetwork
	// KindUnknown is any other failure; counted toward the systemic breaker.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindForbidden:
		return "forbidden"
	case KindBanned:
		return "banned"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is a classified transport failure.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := "transport " + e.Kind.String()
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited builds a rate-limit error.
func RateLimited(retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Forbidden builds a per-source permission error.
func Forbidden(err error) *Error { return &Error{Kind: KindForbidden, Err: err} }

// Banned builds an account-level rejection error.
func Banned(err error) *Error { return &Error{Kind: KindBanned, Err: err} }

// Network builds a transient network error.
func Network(err error) *Error { return &Error{Kind: KindNetwork, Err: err} }

// Classify maps any error onto a Kind. Deadline overruns and net.Error values
// are network-class. Callers check their own context before classifying so a
// shutdown is never mistaken for an outage.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindUnknown
}

// RetryAfter extracts the wait duration of a rate-limit error.
func RetryAfter(err error) time.Duration {
	var te *Error
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
