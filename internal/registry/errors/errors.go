// Package errors holds the sentinel errors shared by the registry layers.
// Callers wrap them with fmt.Errorf("%w: ...") to attach a readable message
// and match them with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = fmt.Errorf("not found")
	ErrDuplicate       = fmt.Errorf("duplicate record")
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrUnauthenticated = fmt.Errorf("unauthenticated")

	// ErrYearLocked is returned for any mutation of records or counters of a locked year.
	ErrYearLocked = fmt.Errorf("year is locked")
	// ErrNotMostRecent is returned when deleting a record that does not hold the highest serial of its scope.
	ErrNotMostRecent = fmt.Errorf("only the most recent record can be deleted")
	// ErrChronologyViolation is returned when a received date would break date order within a numbering scope.
	ErrChronologyViolation = fmt.Errorf("chronology violation")
	// ErrManualOverrideForbidden is returned for manual numbering outside the allowed years or by an unprivileged actor.
	ErrManualOverrideForbidden = fmt.Errorf("manual numbering not allowed")
	// ErrCounterContention is transient: the counter row lock could not be taken in time.
	ErrCounterContention = fmt.Errorf("counter contention")
)

// Retryable reports whether the caller may retry the failed operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrCounterContention)
}
