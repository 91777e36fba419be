package tabungan

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the class of rejected input (amount below minimum,
	// missing field, unknown type or decision).
	ErrValidation = errors.New("validation error")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned for an unknown transaction, student or account.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when resolving a transaction that is no
	// longer pending. Clients should refresh their pending queue.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPersistence wraps failures of the underlying store. Nothing has been
	// applied when it is returned.
	ErrPersistence = errors.New("storage unavailable")
)

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
