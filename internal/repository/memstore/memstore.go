// Package memstore is an in-memory implementation of the repository
// layer.  It follows the same contracts and sentinel errors as the MySQL
// repositories and backs STORAGE=memory as well as the service tests.
package memstore

import (
	"sync"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
)

// Store groups the per-table stores over one shared state.
type Store struct {
	Sessions     *SessionStore
	Reservations *ReservationStore
	Users        *UserStore
	Tokens       *TokenStore
}

type state struct {
	mu sync.Mutex

	nextID map[string]uint64

	sessions     map[uint64]model.ClassSession
	reservations map[uint64]model.Reservation
	waitlist     []model.WaitlistEntry
	audit        []model.AuditEntry
	users        map[uint64]model.User
	tokens       map[string]model.RefreshToken

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	st := &state{
		nextID:       map[string]uint64{},
		sessions:     map[uint64]model.ClassSession{},
		reservations: map[uint64]model.Reservation{},
		users:        map[uint64]model.User{},
		tokens:       map[string]model.RefreshToken{},
		now:          func() time.Time { return time.Now().UTC() },
	}
	return &Store{
		Sessions:     &SessionStore{st: st},
		Reservations: &ReservationStore{st: st},
		Users:        &UserStore{st: st},
		Tokens:       &TokenStore{st: st},
	}
}

func (s *state) id(table string) uint64 {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *state) appendAudit(sessionID, memberID uint64, reservationID *uint64, action string) {
	s.audit = append(s.audit, model.AuditEntry{
		ID:            s.id("audit"),
		SessionID:     sessionID,
		MemberID:      memberID,
		ReservationID: reservationID,
		Action:        action,
		CreatedAt:     s.now(),
	})
}
