package dosing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is wrapped by every validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownProduct is returned when a request names a product that is
	// not in the calculator's catalog.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrUnsupportedMode is returned for modes the calculator does not serve.
	ErrUnsupportedMode = errors.New("unsupported mode")
)

// InputError describes one rejected input value.
type InputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("dosing: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidInput).
func (e *InputError) Unwrap() error { return ErrInvalidInput }
