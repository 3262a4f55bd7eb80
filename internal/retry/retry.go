// Package retry implements exponential backoff with jitter, generalized
// from the teacher's engine.backoffRetry for callers that need a capped
// maximum delay (the streaming driver and the judge both retry against
// provider flakiness on a tighter budget than model escalation does).
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrExhausted is returned when fn never succeeds within maxAttempts.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Do calls fn up to maxAttempts times, sleeping an exponentially growing,
// jittered delay (50%-150% of 2^i * baseDelay, capped at maxDelay) between
// attempts. It returns nil on the first success, ctx.Err() if the context
// is cancelled while waiting, or ErrExhausted wrapping the last error.
func Do(ctx context.Context, maxAttempts int, baseDelay, maxDelay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(int64(1)<<uint(i-1))
			if delay > maxDelay {
				delay = maxDelay
			}
			jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		return ErrExhausted
	}
	return errors.Join(ErrExhausted, lastErr)
}
