package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/readmodel"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// CreateSessionInput is what an admin supplies to schedule a session.
type CreateSessionInput struct {
	Name        string
	Description string
	Category    string
	Level       string
	TrainerID   uint64
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
	Location    string
}

func (in CreateSessionInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case strings.TrimSpace(in.Category) == "":
		return &ValidationError{Field: "category", Reason: "required"}
	case !model.ValidLevel(in.Level):
		return &ValidationError{Field: "level", Reason: "must be BEGINNER, INTERMEDIATE or ADVANCED"}
	case in.TrainerID == 0:
		return &ValidationError{Field: "trainer_id", Reason: "required"}
	case in.Capacity < 1:
		return &ValidationError{Field: "capacity", Reason: "must be a positive integer"}
	case !in.EndsAt.After(in.StartsAt):
		return &ValidationError{Field: "ends_at", Reason: "must be after starts_at"}
	case !in.StartsAt.After(now):
		return &ValidationError{Field: "starts_at", Reason: "must be in the future"}
	case strings.TrimSpace(in.Location) == "":
		return &ValidationError{Field: "location", Reason: "required"}
	}
	return nil
}

// CreateSession schedules a session and opens its ledger entry.
func (s *ReservationService) CreateSession(ctx context.Context, in CreateSessionInput) (readmodel.SessionView, error) {
	in.Level = strings.ToUpper(strings.TrimSpace(in.Level))
	if err := in.validate(s.now()); err != nil {
		return readmodel.SessionView{}, err
	}
	trainer, err := s.users.GetByID(ctx, in.TrainerID)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && trainer.Role != model.RoleTrainer) {
		return readmodel.SessionView{}, &ValidationError{Field: "trainer_id", Reason: "must reference a trainer"}
	}
	if err != nil {
		return readmodel.SessionView{}, fmt.Errorf("lookup trainer: %w", err)
	}

	session := model.ClassSession{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Level:       in.Level,
		TrainerID:   in.TrainerID,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
		Capacity:    in.Capacity,
		Location:    strings.TrimSpace(in.Location),
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		return readmodel.SessionView{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.ledger.Open(session.ID, session.Capacity); err != nil && !errors.Is(err, ledger.ErrSessionExists) {
		return readmodel.SessionView{}, fmt.Errorf("open ledger: %w", err)
	}

	s.logger.Info("class session scheduled",
		zap.Uint64("session_id", session.ID),
		zap.String("name", session.Name),
		zap.Uint64("trainer_id", session.TrainerID),
		zap.Int("capacity", session.Capacity),
		zap.Time("starts_at", session.StartsAt))

	return readmodel.View(session, ledger.Counts{Capacity: session.Capacity}), nil
}

// counts returns the ledger counts of a session.  Sessions that have
// ended and are not loaded are counted from the store without loading
// them.
func (s *ReservationService) counts(ctx context.Context, session model.ClassSession) (ledger.Counts, error) {
	if !s.ledger.Has(session.ID) && !s.now().Before(session.EndsAt) {
		roster, err := s.sessions.Roster(ctx, session.ID)
		if err != nil {
			return ledger.Counts{}, err
		}
		return ledger.Counts{
			Enrolled:       len(roster.Holders),
			Capacity:       session.Capacity,
			WaitlistLength: len(roster.Waitlist),
		}, nil
	}
	if err := s.ensureLoaded(ctx, session.ID); err != nil {
		return ledger.Counts{}, err
	}
	return s.ledger.Snapshot(ctx, session.ID)
}

// Availability returns the enrolled/capacity/waitlist view of a session.
func (s *ReservationService) Availability(ctx context.Context, sessionID uint64) (readmodel.Availability, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return readmodel.Availability{}, err
	}
	c, err := s.counts(ctx, session)
	if err != nil {
		return readmodel.Availability{}, err
	}
	return readmodel.Project(session, c), nil
}

// GetSession returns a session with its availability.
func (s *ReservationService) GetSession(ctx context.Context, sessionID uint64) (readmodel.SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return readmodel.SessionView{}, err
	}
	c, err := s.counts(ctx, session)
	if err != nil {
		return readmodel.SessionView{}, err
	}
	return readmodel.View(session, c), nil
}

// SearchSessions lists catalog sessions matching q with their
// availability, plus the total number of matches.  A session whose
// counts cannot be read is listed with a nil availability.
func (s *ReservationService) SearchSessions(ctx context.Context, q model.SessionQuery) ([]readmodel.SessionView, int64, error) {
	list, total, err := s.sessions.Search(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("search sessions: %w", err)
	}
	counts := make(map[uint64]ledger.Counts, len(list))
	for _, session := range list {
		c, err := s.counts(ctx, session)
		if err != nil {
			s.logger.Warn("availability unavailable",
				zap.Uint64("session_id", session.ID), zap.Error(err))
			continue
		}
		counts[session.ID] = c
	}
	return readmodel.ProjectAll(list, counts), total, nil
}

// MemberReservations lists a member's reservations, newest first.
func (s *ReservationService) MemberReservations(ctx context.Context, memberID uint64) ([]model.Reservation, error) {
	return s.reservations.ListByMember(ctx, memberID)
}

// GetReservation returns a reservation visible to actor: its member, the
// session's trainer or an admin.
func (s *ReservationService) GetReservation(ctx context.Context, reservationID uint64, actor Actor) (model.Reservation, error) {
	r, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	if r.MemberID == actor.UserID || actor.IsAdmin() {
		return r, nil
	}
	session, err := s.sessions.Get(ctx, r.SessionID)
	if err != nil {
		return model.Reservation{}, err
	}
	if !s.canManage(actor, session) {
		return model.Reservation{}, ErrForbidden
	}
	return r, nil
}

// RosterView is what a trainer sees for one session.
type RosterView struct {
	Session      model.ClassSession     `json:"session"`
	Availability readmodel.Availability `json:"availability"`
	Reservations []model.Reservation    `json:"reservations"`
	Waitlist     []model.WaitlistEntry  `json:"waitlist"`
}

// SessionRoster returns reservations and the waitlist of a session to its
// trainer or an admin.
func (s *ReservationService) SessionRoster(ctx context.Context, sessionID uint64, actor Actor) (RosterView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return RosterView{}, err
	}
	if !s.canManage(actor, session) {
		return RosterView{}, ErrForbidden
	}
	c, err := s.counts(ctx, session)
	if err != nil {
		return RosterView{}, err
	}
	reservations, err := s.reservations.ListBySession(ctx, sessionID)
	if err != nil {
		return RosterView{}, fmt.Errorf("list reservations: %w", err)
	}
	waitlist, err := s.reservations.Waitlist(ctx, sessionID)
	if err != nil {
		return RosterView{}, fmt.Errorf("list waitlist: %w", err)
	}
	return RosterView{
		Session:      session,
		Availability: readmodel.Project(session, c),
		Reservations: reservations,
		Waitlist:     waitlist,
	}, nil
}

// SessionAudit returns the append-only history of a session.
func (s *ReservationService) SessionAudit(ctx context.Context, sessionID uint64) ([]model.AuditEntry, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.reservations.ListAudit(ctx, sessionID)
}
