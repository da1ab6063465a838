package messaging

import "errors"

var (
	// ErrTransient is a retryable network or server failure.
	ErrTransient = errors.New("transient network error")
	// ErrUnauthorized covers blocked messaging and insufficient roles. Not retryable.
	ErrUnauthorized = errors.New("not authorized")
	// ErrConflict is a race the server resolved; callers treat it as success.
	ErrConflict = errors.New("conflict")
	// ErrValidation is rejected input: empty or oversized messages, bad ids.
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")

	ErrNoOpenRoom     = errors.New("no room is open")
	ErrClientStopped  = errors.New("client stopped")
	ErrNotFailed      = errors.New("message is not in failed state")
	ErrUnknownMessage = errors.New("message not in open stream")
)

// Retryable reports whether the user may resubmit after err.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
