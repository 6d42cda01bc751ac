package service

import (
	"errors"

	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// Caller errors.  The not-found and forbidden values are the repository
// sentinels so both layers match with errors.Is.
var (
	ErrSessionNotFound     = repository.ErrSessionNotFound
	ErrReservationNotFound = repository.ErrReservationNotFound
	ErrForbidden           = repository.ErrForbidden

	// ErrSessionStarted is returned when booking or cancelling a
	// session whose start time has passed.
	ErrSessionStarted = errors.New("class session already started")
	// ErrReservationNotConfirmed is returned when attendance is marked on
	// a reservation that is cancelled or already attended.
	ErrReservationNotConfirmed = errors.New("reservation is not confirmed")
)

// ValidationError reports an invalid CreateSession input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// ErrInvalidSession matches any *ValidationError.
var ErrInvalidSession = errors.New("invalid class session")

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidSession }
