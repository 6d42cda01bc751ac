package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
)

// Restore loads every session that has not ended into the ledger.  It is
// run at startup; sessions that fail to load are logged and left to lazy
// loading.
func (s *ReservationService) Restore(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListActive(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	var (
		loaded int
		errs   []error
	)
	for _, session := range sessions {
		if err := s.ensureLoaded(ctx, session.ID); err != nil {
			s.logger.Error("restore session failed", zap.Uint64("session_id", session.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	s.logger.Info("ledger restored", zap.Int("sessions", loaded), zap.Int("failed", len(errs)))
	return loaded, errors.Join(errs...)
}

// ReconcileReport summarises one Reconcile pass.
type ReconcileReport struct {
	Checked   int
	Diverged  int
	Forgotten int
}

// Reconcile compares each loaded session with the store under the
// session lock.  A mismatch is logged as a concurrency conflict.
// Sessions that ended more than the forget window ago are dropped.
func (s *ReservationService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	for _, id := range s.ledger.Sessions() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		session, err := s.sessions.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			s.ledger.Forget(id)
			report.Forgotten++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("get session %d: %w", id, err)
		}
		if session.EndsAt.Add(s.forgetAfter).Before(s.now()) {
			s.ledger.Forget(id)
			report.Forgotten++
			continue
		}

		report.Checked++
		err = s.ledger.Inspect(ctx, id, func(c ledger.Counts) error {
			roster, err := s.sessions.Roster(ctx, id)
			if err != nil {
				return err
			}
			if c.Enrolled != len(roster.Holders) || c.WaitlistLength != len(roster.Waitlist) {
				return fmt.Errorf("%w: ledger %d/%d waitlist %d, store %d holders waitlist %d",
					ledger.ErrConcurrencyConflict, c.Enrolled, c.Capacity, c.WaitlistLength,
					len(roster.Holders), len(roster.Waitlist))
			}
			return nil
		})
		switch {
		case errors.Is(err, ledger.ErrConcurrencyConflict):
			report.Diverged++
			s.logger.Error("ledger diverged from store", zap.Uint64("session_id", id), zap.Error(err))
		case err != nil:
			return report, fmt.Errorf("reconcile session %d: %w", id, err)
		}
	}
	return report, nil
}
