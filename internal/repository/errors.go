// Package repository implements MySQL persistence for sessions,
// reservations, waitlists, users and refresh tokens.  The sentinel values
// below are shared with the in-memory store so higher layers can match
// failures with errors.Is regardless of the backend.
package repository

import "errors"

var (
	// ErrForbidden is returned when the caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict signals a uniqueness violation the ledger should have
	// prevented, such as a second live reservation for the same member.
	ErrConflict = errors.New("conflict")

	ErrSessionNotFound     = errors.New("class session not found")
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationNotActive is returned when a status transition finds
	// the reservation no longer CONFIRMED.
	ErrReservationNotActive = errors.New("reservation not active")
	ErrNotWaitlisted        = errors.New("member not on waitlist")
	// ErrCapacityExceeded is returned when a seat insert would take the
	// stored seat count past capacity.
	ErrCapacityExceeded = errors.New("stored seat count at capacity")

	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrTokenInvalid = errors.New("refresh token invalid")
)
