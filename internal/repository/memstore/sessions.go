package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

type SessionStore struct{ st *state }

func (s *SessionStore) Create(_ context.Context, cs *model.ClassSession) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cs.ID = s.st.id("sessions")
	cs.CreatedAt = s.st.now()
	s.st.sessions[cs.ID] = *cs
	return nil
}

func (s *SessionStore) Get(_ context.Context, id uint64) (model.ClassSession, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cs, ok := s.st.sessions[id]
	if !ok {
		return model.ClassSession{}, repository.ErrSessionNotFound
	}
	return cs, nil
}

func (s *SessionStore) ListActive(_ context.Context, since time.Time) ([]model.ClassSession, error) {
	s.st.mu.Lock()
	out := make([]model.ClassSession, 0)
	for _, cs := range s.st.sessions {
		if !cs.EndsAt.Before(since) {
			out = append(out, cs)
		}
	}
	s.st.mu.Unlock()
	sortSessions(out)
	return out, nil
}

func (s *SessionStore) Search(_ context.Context, q model.SessionQuery) ([]model.ClassSession, int64, error) {
	text := strings.ToLower(q.Text)
	s.st.mu.Lock()
	matched := make([]model.ClassSession, 0)
	for _, cs := range s.st.sessions {
		switch {
		case text != "" && !strings.Contains(strings.ToLower(cs.Name), text) &&
			!strings.Contains(strings.ToLower(cs.Description), text):
		case q.Category != "" && !strings.EqualFold(cs.Category, q.Category):
		case q.Level != "" && cs.Level != q.Level:
		case q.TrainerID != 0 && cs.TrainerID != q.TrainerID:
		case q.From != nil && cs.StartsAt.Before(*q.From):
		case q.To != nil && !cs.StartsAt.Before(*q.To):
		default:
			matched = append(matched, cs)
		}
	}
	s.st.mu.Unlock()
	sortSessions(matched)

	total := int64(len(matched))
	if q.Offset < 0 || q.Offset >= len(matched) {
		return []model.ClassSession{}, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (s *SessionStore) Roster(_ context.Context, id uint64) (model.SessionRoster, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cs, ok := s.st.sessions[id]
	if !ok {
		return model.SessionRoster{}, repository.ErrSessionNotFound
	}
	roster := model.SessionRoster{Session: cs, Holders: []uint64{}, Waitlist: []uint64{}}
	for _, r := range s.st.sortedReservations() {
		if r.SessionID == id && r.HoldsSeat() {
			roster.Holders = append(roster.Holders, r.MemberID)
		}
	}
	for _, w := range s.st.waitlist {
		if w.SessionID == id {
			roster.Waitlist = append(roster.Waitlist, w.MemberID)
		}
	}
	return roster, nil
}

func sortSessions(list []model.ClassSession) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartsAt.Equal(list[j].StartsAt) {
			return list[i].StartsAt.Before(list[j].StartsAt)
		}
		return list[i].ID < list[j].ID
	})
}
