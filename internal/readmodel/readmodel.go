// Package readmodel projects ledger counts into the availability view
// served to clients.  It holds no state and is never a source of truth.
package readmodel

import (
	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/model"
)

// Availability is the per-session tuple shown on booking lists.
type Availability struct {
	SessionID      uint64 `json:"session_id"`
	Enrolled       int    `json:"enrolled"`
	Capacity       int    `json:"capacity"`
	WaitlistLength int    `json:"waitlist_length"`
	SeatsLeft      int    `json:"seats_left"`
	Full           bool   `json:"full"`
}

// SessionView is a class session together with its availability.
// Availability is nil when the seat counts could not be read, so an
// unknown session is never shown as open.
type SessionView struct {
	model.ClassSession
	Availability *Availability `json:"availability"`
}

// View pairs a session with the availability derived from c.
func View(s model.ClassSession, c ledger.Counts) SessionView {
	av := Project(s, c)
	return SessionView{ClassSession: s, Availability: &av}
}

// Project derives the availability of one session.
func Project(s model.ClassSession, c ledger.Counts) Availability {
	left := c.Capacity - c.Enrolled
	if left < 0 {
		left = 0
	}
	return Availability{
		SessionID:      s.ID,
		Enrolled:       c.Enrolled,
		Capacity:       c.Capacity,
		WaitlistLength: c.WaitlistLength,
		SeatsLeft:      left,
		Full:           left == 0,
	}
}

// ProjectAll builds views for sessions in order.  Sessions missing from
// counts get a nil Availability.
func ProjectAll(sessions []model.ClassSession, counts map[uint64]ledger.Counts) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		c, ok := counts[s.ID]
		if !ok {
			out = append(out, SessionView{ClassSession: s})
			continue
		}
		out = append(out, View(s, c))
	}
	return out
}
