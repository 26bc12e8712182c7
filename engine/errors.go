package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations invoked outside the Ready state.
	ErrNotInitialized = errors.New("engine: not initialized")

	// ErrInitializationFailed is returned when the backend setup failed.
	// The underlying cause is wrapped alongside it.
	ErrInitializationFailed = errors.New("engine: initialization failed")

	// ErrMalformedInput indicates an encoded value that fails structural validation.
	ErrMalformedInput = errors.New("engine: malformed ciphertext")

	// ErrInsufficientOperands indicates an aggregate over fewer than MinOperands values.
	ErrInsufficientOperands = errors.New("engine: insufficient operands")

	// ErrOperandLimit indicates an aggregate over more values than the scheme can hold.
	ErrOperandLimit = errors.New("engine: operand limit exceeded")
)

// Error wraps an underlying error with the engine operation that failed.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns a short stable label for err, suitable for metrics and
// user-facing notifications. It never includes the error text.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrInitializationFailed):
		return "initialization_failed"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrInsufficientOperands):
		return "insufficient_operands"
	case errors.Is(err, ErrOperandLimit):
		return "operand_limit"
	default:
		return "internal"
	}
}

// Malformed wraps ErrMalformedInput with a structural reason. Schemes use it
// to report ciphertexts they cannot parse.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
