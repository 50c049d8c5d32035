package translate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable means the backend was unreachable or returned 5xx.
	// Callers may retry; the planner falls back to the original text.
	ErrUnavailable = errors.New("translation backend unavailable")

	// ErrMalformed means the backend answered but the response was unusable.
	// Not retryable; fall back to the original text.
	ErrMalformed = errors.New("malformed translation response")
)

// RateLimitedError is returned on 429 and carries the server-suggested delay
// (zero when the server did not provide one).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("translation rate limited, retry after %s", e.RetryAfter)
	}
	return "translation rate limited"
}

// IsRetryable reports whether the error class may succeed on a later attempt.
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &rl)
}
