package domain

import "errors"

// ErrSlotGone reports that a sink message no longer exists. Callers treat it
// as success-equivalent: the slot is abandoned rather than recreated.
var ErrSlotGone = errors.New("slot message gone")

type transientError struct {
	cause error
}

func (e transientError) Error() string {
	if e.cause == nil {
		return "transient error"
	}
	return e.cause.Error()
}

func (e transientError) Unwrap() error {
	return e.cause
}

// Transient marks an error as retryable on the next cycle.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{cause: err}
}

// IsTransient reports whether err was explicitly marked as retryable.
func IsTransient(err error) bool {
	var target transientError
	return errors.As(err, &target)
}
