package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

type ReservationStore struct {
	st *state
	// failNext, when set, is returned by the next write instead of
	// applying it.
	failNext error
}

// FailNextWrite makes the next state-changing call return err without
// applying anything.
func (s *ReservationStore) FailNextWrite(err error) {
	s.st.mu.Lock()
	s.failNext = err
	s.st.mu.Unlock()
}

func (s *ReservationStore) injected() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *ReservationStore) ReserveSeat(_ context.Context, sessionID, memberID uint64) (model.Reservation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.injected(); err != nil {
		return model.Reservation{}, err
	}
	cs, ok := s.st.sessions[sessionID]
	if !ok {
		return model.Reservation{}, repository.ErrSessionNotFound
	}
	seats := 0
	for _, r := range s.st.reservations {
		if r.SessionID != sessionID || !r.HoldsSeat() {
			continue
		}
		if r.MemberID == memberID {
			return model.Reservation{}, repository.ErrConflict
		}
		seats++
	}
	if seats >= cs.Capacity {
		return model.Reservation{}, fmt.Errorf("session %d holds %d/%d: %w", sessionID, seats, cs.Capacity, repository.ErrCapacityExceeded)
	}
	r := s.st.insertReservation(sessionID, memberID)
	s.st.appendAudit(sessionID, memberID, &r.ID, model.AuditReserved)
	return r, nil
}

func (s *ReservationStore) EnqueueWaitlist(_ context.Context, sessionID, memberID uint64) (model.WaitlistEntry, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.injected(); err != nil {
		return model.WaitlistEntry{}, err
	}
	if _, ok := s.st.sessions[sessionID]; !ok {
		return model.WaitlistEntry{}, repository.ErrSessionNotFound
	}
	if s.st.waitlistIndex(sessionID, memberID) >= 0 {
		return model.WaitlistEntry{}, repository.ErrConflict
	}
	w := model.WaitlistEntry{ID: s.st.id("waitlist"), SessionID: sessionID, MemberID: memberID, CreatedAt: s.st.now()}
	s.st.waitlist = append(s.st.waitlist, w)
	s.st.appendAudit(sessionID, memberID, nil, model.AuditWaitlisted)
	return w, nil
}

func (s *ReservationStore) CancelReservation(_ context.Context, reservationID, promote uint64) (model.Reservation, *model.Reservation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.injected(); err != nil {
		return model.Reservation{}, nil, err
	}
	cur, ok := s.st.reservations[reservationID]
	if !ok {
		return model.Reservation{}, nil, repository.ErrReservationNotFound
	}
	if cur.Status != model.ReservationConfirmed {
		return model.Reservation{}, nil, repository.ErrReservationNotActive
	}
	wi := -1
	if promote != 0 {
		if wi = s.st.waitlistIndex(cur.SessionID, promote); wi < 0 {
			return model.Reservation{}, nil, fmt.Errorf("promote member %d: %w", promote, repository.ErrNotWaitlisted)
		}
	}

	cur.Status = model.ReservationCancelled
	cur.UpdatedAt = s.st.now()
	s.st.reservations[cur.ID] = cur
	s.st.appendAudit(cur.SessionID, cur.MemberID, &cur.ID, model.AuditCancelled)
	if promote == 0 {
		return cur, nil, nil
	}
	s.st.waitlist = append(s.st.waitlist[:wi], s.st.waitlist[wi+1:]...)
	p := s.st.insertReservation(cur.SessionID, promote)
	s.st.appendAudit(cur.SessionID, promote, &p.ID, model.AuditPromoted)
	return cur, &p, nil
}

func (s *ReservationStore) LeaveWaitlist(_ context.Context, sessionID, memberID uint64) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.injected(); err != nil {
		return err
	}
	i := s.st.waitlistIndex(sessionID, memberID)
	if i < 0 {
		return repository.ErrNotWaitlisted
	}
	s.st.waitlist = append(s.st.waitlist[:i], s.st.waitlist[i+1:]...)
	s.st.appendAudit(sessionID, memberID, nil, model.AuditLeftWaitlist)
	return nil
}

func (s *ReservationStore) MarkAttended(_ context.Context, reservationID uint64) (model.Reservation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.injected(); err != nil {
		return model.Reservation{}, err
	}
	r, ok := s.st.reservations[reservationID]
	if !ok {
		return model.Reservation{}, repository.ErrReservationNotFound
	}
	if r.Status != model.ReservationConfirmed {
		return model.Reservation{}, repository.ErrReservationNotActive
	}
	r.Status = model.ReservationAttended
	r.UpdatedAt = s.st.now()
	s.st.reservations[r.ID] = r
	s.st.appendAudit(r.SessionID, r.MemberID, &r.ID, model.AuditAttended)
	return r, nil
}

func (s *ReservationStore) Get(_ context.Context, id uint64) (model.Reservation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	r, ok := s.st.reservations[id]
	if !ok {
		return model.Reservation{}, repository.ErrReservationNotFound
	}
	return r, nil
}

func (s *ReservationStore) ListByMember(_ context.Context, memberID uint64) ([]model.Reservation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]model.Reservation, 0)
	all := s.st.sortedReservations()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].MemberID == memberID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *ReservationStore) ListBySession(_ context.Context, sessionID uint64) ([]model.Reservation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, r := range s.st.sortedReservations() {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ReservationStore) Waitlist(_ context.Context, sessionID uint64) ([]model.WaitlistEntry, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]model.WaitlistEntry, 0)
	for _, w := range s.st.waitlist {
		if w.SessionID == sessionID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *ReservationStore) ListAudit(_ context.Context, sessionID uint64) ([]model.AuditEntry, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]model.AuditEntry, 0)
	for _, a := range s.st.audit {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *state) insertReservation(sessionID, memberID uint64) model.Reservation {
	now := s.now()
	r := model.Reservation{
		ID:        s.id("reservations"),
		SessionID: sessionID,
		MemberID:  memberID,
		Status:    model.ReservationConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.reservations[r.ID] = r
	return r
}

func (s *state) waitlistIndex(sessionID, memberID uint64) int {
	for i, w := range s.waitlist {
		if w.SessionID == sessionID && w.MemberID == memberID {
			return i
		}
	}
	return -1
}

func (s *state) sortedReservations() []model.Reservation {
	out := make([]model.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
