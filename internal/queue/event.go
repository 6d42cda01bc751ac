// Package queue carries booking events over RabbitMQ: the publisher used
// by the reservation service and the notification consumer.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// QueueName is the durable queue booking events are published to.
const QueueName = "class.booking.events"

// Event types.
const (
	EventReserved     = "reservation.confirmed"
	EventWaitlisted   = "reservation.waitlisted"
	EventCancelled    = "reservation.cancelled"
	EventPromoted     = "reservation.promoted"
	EventLeftWaitlist = "waitlist.left"
	EventAttended     = "reservation.attended"
)

// BookingEvent is published after every seat or waitlist change.  It
// carries enough context for notifications without a database lookup.
type BookingEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	ReservationID uint64    `json:"reservation_id,omitempty"`
	SessionID     uint64    `json:"session_id"`
	MemberID      uint64    `json:"member_id"`
	SessionName   string    `json:"session_name"`
	StartsAt      time.Time `json:"starts_at"`
	Position      int       `json:"position,omitempty"`
	Promoted      bool      `json:"promoted"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event id and occurrence time.
func NewEvent(eventType string) BookingEvent {
	return BookingEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
}
