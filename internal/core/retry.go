package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetryPolicy is the shared retry-count accounting used by every sweep.
// Failures are retried on the next scheduler tick: waitUntil is reset to the
// failure time rather than growing exponentially, because the tick interval
// itself provides the spacing.
type RetryPolicy struct {
	MaxRetries int
}

// ShouldRetry reports whether another attempt is allowed after retries
// failures.
func (p RetryPolicy) ShouldRetry(retries int) bool {
	return retries < p.MaxRetries
}

// NextAttempt returns the bookkeeping for one more failed attempt: the
// incremented count and the time the entity becomes eligible again.
func (p RetryPolicy) NextAttempt(retries int, now time.Time) (int, time.Time) {
	return retries + 1, now
}

// Exhausted reports whether the count, after increment, exceeds the maximum
// and the entity must transition to its terminal failed state.
func (p RetryPolicy) Exhausted(retries int) bool {
	return retries > p.MaxRetries
}

// FailureReason tags a human-readable reason with a correlation id so the
// terminal record can be cross-referenced with logs.
func FailureReason(reason string) string {
	return fmt.Sprintf("%s [ref: %s]", reason, uuid.NewString())
}
