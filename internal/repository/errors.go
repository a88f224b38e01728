// Package repository defines the ticket store and the error types it
// reports.  These values allow higher layers such as handlers to
// distinguish between different failure scenarios.
package repository

import (
	"errors"
	"strings"

	"github.com/iliyamo/raffle-ledger/internal/model"
)

// ErrConflict is returned when a reservation cannot proceed because one or
// more of the requested tickets is no longer available.  Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ConflictError carries the ticket numbers that blocked a reservation,
// sorted ascending.  It matches ErrConflict under errors.Is.
type ConflictError struct {
	Numbers []int
}

func (e *ConflictError) Error() string {
	return "tickets no longer available: " + strings.Join(e.Labels(), ", ")
}

// Is makes errors.Is(err, ErrConflict) true for any *ConflictError.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Labels returns the conflicting numbers in their zero-padded display form.
func (e *ConflictError) Labels() []string { return model.FormatNumbers(e.Numbers) }
