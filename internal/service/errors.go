package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is matched by every *InputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("storage failure")
)

// InputError describes a rejected request.  Reason is safe to show to the
// caller.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(format string, args ...interface{}) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failure of the ticket store.  The wrapped error is
// logged but never returned to HTTP clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
