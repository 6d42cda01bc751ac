// Package service orchestrates the seat ledger with persistence, events
// and logging.  Every seat change goes through the ledger's per-session
// critical section and is written to the store from inside it, so the
// in-memory and stored state move together.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// ReservationService implements booking, cancellation, the waitlist and
// the session catalog.
type ReservationService struct {
	ledger       *ledger.Ledger
	sessions     SessionStore
	reservations ReservationStore
	users        UserLookup
	events       EventPublisher
	logger       *zap.Logger

	now         func() time.Time
	forgetAfter time.Duration
}

// Option customises a ReservationService.
type Option func(*ReservationService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ReservationService) { s.now = now }
}

// WithForgetAfter sets how long after its end a session stays in the
// ledger before Reconcile drops it.
func WithForgetAfter(d time.Duration) Option {
	return func(s *ReservationService) { s.forgetAfter = d }
}

// NewReservationService wires the service.  events may be nil when event
// publishing is disabled.
func NewReservationService(
	l *ledger.Ledger,
	sessions SessionStore,
	reservations ReservationStore,
	users UserLookup,
	events EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *ReservationService {
	s := &ReservationService{
		ledger:       l,
		sessions:     sessions,
		reservations: reservations,
		users:        users,
		events:       events,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		forgetAfter:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureLoaded rebuilds the ledger entry of a session from the store the
// first time it is touched after a restart.
func (s *ReservationService) ensureLoaded(ctx context.Context, sessionID uint64) error {
	if s.ledger.Has(sessionID) {
		return nil
	}
	roster, err := s.sessions.Roster(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	loaded, err := s.ledger.Load(sessionID, roster.Session.Capacity, roster.Holders, roster.Waitlist)
	if err != nil {
		if errors.Is(err, ledger.ErrConcurrencyConflict) {
			s.logger.Error("stored roster exceeds capacity",
				zap.Uint64("session_id", sessionID),
				zap.Int("holders", len(roster.Holders)),
				zap.Int("capacity", roster.Session.Capacity),
				zap.Error(err))
		}
		return fmt.Errorf("load session %d: %w", sessionID, err)
	}
	if loaded {
		s.logger.Debug("session loaded into ledger",
			zap.Uint64("session_id", sessionID),
			zap.Int("holders", len(roster.Holders)),
			zap.Int("waitlist", len(roster.Waitlist)))
	}
	return nil
}

// bookable returns a session that can still change hands, loaded into
// the ledger.
func (s *ReservationService) bookable(ctx context.Context, sessionID uint64) (model.ClassSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return model.ClassSession{}, err
	}
	if !s.now().Before(session.StartsAt) {
		return model.ClassSession{}, ErrSessionStarted
	}
	if err := s.ensureLoaded(ctx, sessionID); err != nil {
		return model.ClassSession{}, err
	}
	return session, nil
}

// storeErr wraps a store failure.  Failures that can only mean the store
// and the ledger disagree are marked as concurrency conflicts.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrCapacityExceeded) ||
		errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, repository.ErrNotWaitlisted) {
		return fmt.Errorf("%w: %s: %w", ledger.ErrConcurrencyConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// fail logs concurrency conflicts at error level and returns err.
func (s *ReservationService) fail(op string, sessionID, memberID uint64, err error) error {
	if errors.Is(err, ledger.ErrConcurrencyConflict) {
		s.logger.Error("seat ledger conflict",
			zap.String("op", op),
			zap.Uint64("session_id", sessionID),
			zap.Uint64("member_id", memberID),
			zap.Error(err))
	}
	return err
}

// publish delivers ev without failing the caller.
func (s *ReservationService) publish(ctx context.Context, session model.ClassSession, ev queue.BookingEvent) {
	if s.events == nil {
		return
	}
	ev.SessionID = session.ID
	ev.SessionName = session.Name
	ev.StartsAt = session.StartsAt

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish booking event failed",
			zap.String("type", ev.Type),
			zap.Uint64("session_id", ev.SessionID),
			zap.Uint64("member_id", ev.MemberID),
			zap.Error(err))
	}
}
