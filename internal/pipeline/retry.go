package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"lexiscan/internal/llm"
)

// IsRetryable checks if an error is worth retrying. Transient invocation
// errors qualify, and so does a stage deadline expiry: the next attempt
// gets a fresh deadline.
func IsRetryable(err error) bool {
	return llm.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
