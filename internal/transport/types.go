package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Messenger is the outbound chat-platform capability.
//
// Implementations must be safe for concurrent use and honor ctx cancellation.
// Failures should be tagged: wrap with Permanent() when the destination is
// gone (deleted channel, user left, permanent 4xx) and with RetryAfter() when
// the platform supplies a backoff hint (429).
type Messenger interface {
	PostToChannel(ctx context.Context, channelID, text string) error
	SendDM(ctx context.Context, userID, text string) error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent tags err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryAfterError carries a server-suggested retry delay.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string { return fmt.Sprintf("retry after %s: %v", e.After, e.Err) }
func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter tags err with a backoff hint.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryAfterError{Err: err, After: after}
}

// RetryAfterHint extracts a backoff hint, if err carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.After, true
	}
	return 0, false
}
