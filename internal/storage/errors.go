package storage

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when an insert violates a natural-key uniqueness
// constraint. Callers treat it as a successful dedup, not a failure.
var ErrConflict = errors.New("storage: conflict on natural key")

// ErrMalformedTransfer marks a transfer record that fails integrity checks
// (non-positive amount, missing token reference, empty addresses). The
// offending record is skipped and logged, never fatal to a window.
var ErrMalformedTransfer = errors.New("storage: malformed transfer")

// TransientError wraps store failures that are safe to retry: the sweep for
// the affected token is simply re-attempted on the next cycle.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a natural-key conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
