package model

import "time"

// Reservation statuses.  CONFIRMED and ATTENDED both hold a seat.
const (
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
	ReservationAttended  = "ATTENDED"
)

// Reservation records a member's seat in a class session.  Rows are
// never deleted; a cancelled reservation keeps its history.
//
// Fields:
//  ID        – primary key identifier.
//  SessionID – class session being booked.
//  MemberID  – user who holds the seat.
//  Status    – CONFIRMED, CANCELLED or ATTENDED.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last status change.
type Reservation struct {
	ID        uint64    `json:"id"`
	SessionID uint64    `json:"session_id"`
	MemberID  uint64    `json:"member_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HoldsSeat reports whether the reservation counts against capacity.
func (r Reservation) HoldsSeat() bool {
	return r.Status == ReservationConfirmed || r.Status == ReservationAttended
}

// WaitlistEntry is a member queued for a full session.  Entries are
// ordered by ID and removed on promotion or when the member leaves.
type WaitlistEntry struct {
	ID        uint64    `json:"id"`
	SessionID uint64    `json:"session_id"`
	MemberID  uint64    `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit actions.
const (
	AuditReserved     = "RESERVED"
	AuditWaitlisted   = "WAITLISTED"
	AuditCancelled    = "CANCELLED"
	AuditPromoted     = "PROMOTED"
	AuditLeftWaitlist = "LEFT_WAITLIST"
	AuditAttended     = "ATTENDED"
)

// AuditEntry is one row of the append-only `reservation_audit` log.
type AuditEntry struct {
	ID            uint64    `json:"id"`
	SessionID     uint64    `json:"session_id"`
	MemberID      uint64    `json:"member_id"`
	ReservationID *uint64   `json:"reservation_id,omitempty"`
	Action        string    `json:"action"`
	CreatedAt     time.Time `json:"created_at"`
}
