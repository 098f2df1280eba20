package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the bridge
var (
	// Caller input errors
	ErrValidation = errors.New("validation failed")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidStatus   = errors.New("invalid login status")

	// Upstream errors
	ErrUpstreamTransport = errors.New("upstream request failed")
	ErrUpstreamAuth      = errors.New("upstream rejected login")
	ErrUpstreamRejected  = errors.New("upstream rejected request")
	ErrUpstreamPayload   = errors.New("upstream response could not be decoded")
	ErrNotAuthenticated  = errors.New("session is not authenticated")

	// Export errors
	ErrRender         = errors.New("document render failed")
	ErrMerge          = errors.New("document merge failed")
	ErrNoTransactions = errors.New("No transactions to export")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// ValidationError is rejected caller input. Msg is returned to the caller unchanged.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidation(msg string) error {
	return &ValidationError{Msg: msg}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Messages flattens errors into the human readable strings returned to callers.
func Messages(errs ...error) []string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}
