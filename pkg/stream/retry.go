package stream

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries is the number of reattempts beyond the first
	// attempt, i.e. three total attempts.
	DefaultMaxRetries = 2

	// DefaultBackoffBase and DefaultBackoffCap bound the exponential
	// backoff between attempts.
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 10 * time.Second
)

// ErrStalled marks a watchdog-detected stall. Stalls are classified as
// connection errors and are always retryable.
var ErrStalled = errors.New("stream stalled: no bytes received within the stall threshold")

// NoRetries disables reattempts entirely. The zero value of Policy.MaxRetries
// keeps the default budget, so opting out takes an explicit sentinel.
const NoRetries = -1

// Decision is the retry policy's answer for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy decides whether a failed attempt is reattempted and with what
// delay. The zero value is usable and applies the defaults.
type Policy struct {
	// MaxRetries bounds reattempts beyond the first attempt. Zero keeps
	// the default; NoRetries disables reattempts.
	MaxRetries int

	// Base and Cap shape the exponential backoff: min(Base * 2^attempt, Cap).
	Base time.Duration
	Cap  time.Duration
}

// Decide computes the retry decision for a 0-based attempt counter given the
// failure's classification.
func (p Policy) Decide(attempt int, retryable bool) Decision {
	maxRetries := p.maxRetries()
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	limit := p.Cap
	if limit <= 0 {
		limit = DefaultBackoffCap
	}

	if !retryable || attempt >= maxRetries {
		return Decision{}
	}

	delay := base << attempt
	if delay > limit {
		delay = limit
	}

	return Decision{Retry: true, Delay: delay}
}

// maxRetries resolves the configured reattempt budget.
func (p Policy) maxRetries() int {
	switch {
	case p.MaxRetries < 0:
		return 0
	case p.MaxRetries == 0:
		return DefaultMaxRetries
	default:
		return p.MaxRetries
	}
}

// maxAttempts is the total attempt budget, retries included.
func (p Policy) maxAttempts() int {
	return p.maxRetries() + 1
}

// RetryableStatus reports whether an HTTP status is worth reattempting:
// request timeout, too-many-requests, and the 5xx family used for server and
// gateway failure.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500 && status <= 599
}

// RetryableError reports whether a transport-level error is worth
// reattempting. Stalls and connection errors always are; explicit
// cancellation never is.
func RetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
