package service

import "errors"

var (
	ErrIDRequired      = errors.New("id is required")
	ErrNotFound        = errors.New("document not found")
	ErrFileMissing     = errors.New("file not found on server")
	ErrUnauthenticated = errors.New("authentication required")
)

// ValidationError is a caller mistake. Message is safe to return to clients.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error) *ValidationError {
	return &ValidationError{Message: err.Error(), Err: err}
}
