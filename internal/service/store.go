package service

import (
	"context"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/queue"
)

// SessionStore persists class sessions.  Implemented by
// repository.SessionRepo and memstore.SessionStore.
type SessionStore interface {
	Create(ctx context.Context, s *model.ClassSession) error
	Get(ctx context.Context, id uint64) (model.ClassSession, error)
	ListActive(ctx context.Context, since time.Time) ([]model.ClassSession, error)
	Search(ctx context.Context, q model.SessionQuery) ([]model.ClassSession, int64, error)
	Roster(ctx context.Context, id uint64) (model.SessionRoster, error)
}

// ReservationStore persists reservations, waitlists and the audit log.
// Every write is a single transaction.
type ReservationStore interface {
	ReserveSeat(ctx context.Context, sessionID, memberID uint64) (model.Reservation, error)
	EnqueueWaitlist(ctx context.Context, sessionID, memberID uint64) (model.WaitlistEntry, error)
	CancelReservation(ctx context.Context, reservationID, promote uint64) (model.Reservation, *model.Reservation, error)
	LeaveWaitlist(ctx context.Context, sessionID, memberID uint64) error
	MarkAttended(ctx context.Context, reservationID uint64) (model.Reservation, error)
	Get(ctx context.Context, id uint64) (model.Reservation, error)
	ListByMember(ctx context.Context, memberID uint64) ([]model.Reservation, error)
	ListBySession(ctx context.Context, sessionID uint64) ([]model.Reservation, error)
	Waitlist(ctx context.Context, sessionID uint64) ([]model.WaitlistEntry, error)
	ListAudit(ctx context.Context, sessionID uint64) ([]model.AuditEntry, error)
}

// UserLookup resolves trainers when sessions are scheduled.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// EventPublisher delivers booking events.  Implemented by queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}
