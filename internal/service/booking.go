package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// errNoLongerWaitlisted aborts a waitlist leave whose member was promoted
// between the position check and the ledger call.
var errNoLongerWaitlisted = errors.New("member no longer waitlisted")

// BookResult is the outcome of Book.  Reservation is set on RESERVED and
// Position on WAITLISTED or ALREADY_WAITLISTED.
type BookResult struct {
	Outcome     ledger.Outcome
	Reservation *model.Reservation
	Position    int
}

// Book claims a seat for memberID.  With joinWaitlist a full session
// queues the member instead of answering FULL.
func (s *ReservationService) Book(ctx context.Context, sessionID, memberID uint64, joinWaitlist bool) (BookResult, error) {
	session, err := s.bookable(ctx, sessionID)
	if err != nil {
		return BookResult{}, err
	}

	var out BookResult
	commit := func(ctx context.Context, ch ledger.Change) error {
		switch ch.Outcome {
		case ledger.Reserved:
			r, err := s.reservations.ReserveSeat(ctx, ch.SessionID, ch.MemberID)
			if err != nil {
				return storeErr("reserve seat", err)
			}
			out.Reservation = &r
		case ledger.Waitlisted:
			if _, err := s.reservations.EnqueueWaitlist(ctx, ch.SessionID, ch.MemberID); err != nil {
				return storeErr("enqueue waitlist", err)
			}
		}
		return nil
	}

	reserve := s.ledger.TryReserve
	if joinWaitlist {
		reserve = s.ledger.ReserveOrWait
	}
	res, err := reserve(ctx, sessionID, memberID, commit)
	if err != nil {
		return BookResult{}, s.fail("book", sessionID, memberID, err)
	}
	out.Outcome, out.Position = res.Outcome, res.Position

	s.logger.Info("booking attempt",
		zap.Uint64("session_id", sessionID),
		zap.Uint64("member_id", memberID),
		zap.String("outcome", string(out.Outcome)),
		zap.Int("position", out.Position))

	switch out.Outcome {
	case ledger.Reserved:
		ev := queue.NewEvent(queue.EventReserved)
		ev.MemberID, ev.ReservationID = memberID, out.Reservation.ID
		s.publish(ctx, session, ev)
	case ledger.Waitlisted:
		ev := queue.NewEvent(queue.EventWaitlisted)
		ev.MemberID, ev.Position = memberID, out.Position
		s.publish(ctx, session, ev)
	}
	return out, nil
}

// CancelResult is the outcome of Cancel.  Promoted is the reservation
// created for the waitlisted member who took the released seat.
type CancelResult struct {
	Outcome     ledger.Outcome
	Reservation *model.Reservation
	Promoted    *model.Reservation
}

// Cancel releases the seat held by a reservation.  Members may cancel
// their own reservations and admins any.  A reservation that is no
// longer CONFIRMED answers NOT_FOUND and never releases a seat.
func (s *ReservationService) Cancel(ctx context.Context, reservationID uint64, actor Actor) (CancelResult, error) {
	r, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return CancelResult{}, err
	}
	if !actor.IsAdmin() && r.MemberID != actor.UserID {
		return CancelResult{}, ErrForbidden
	}
	if r.Status != model.ReservationConfirmed {
		return CancelResult{Outcome: ledger.NotFound}, nil
	}
	session, err := s.bookable(ctx, r.SessionID)
	if err != nil {
		return CancelResult{}, err
	}

	var out CancelResult
	commit := func(ctx context.Context, ch ledger.Change) error {
		if ch.Outcome != ledger.Cancelled {
			return fmt.Errorf("%w: reservation %d is confirmed but its member is waitlisted",
				ledger.ErrConcurrencyConflict, r.ID)
		}
		cancelled, promoted, err := s.reservations.CancelReservation(ctx, r.ID, ch.Promoted)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotActive) {
				return err
			}
			return storeErr("cancel reservation", err)
		}
		out.Reservation, out.Promoted = &cancelled, promoted
		return nil
	}

	res, err := s.ledger.Cancel(ctx, r.SessionID, r.MemberID, commit)
	switch {
	case errors.Is(err, repository.ErrReservationNotActive):
		return CancelResult{Outcome: ledger.NotFound}, nil
	case err != nil:
		return CancelResult{}, s.fail("cancel", r.SessionID, r.MemberID, err)
	case res.Outcome == ledger.NotFound:
		// The ledger holds no seat.  Normal when a concurrent cancel won,
		// a conflict when the store still shows the reservation live.
		cur, gerr := s.reservations.Get(ctx, reservationID)
		if gerr == nil && cur.Status == model.ReservationConfirmed {
			return CancelResult{}, s.fail("cancel", r.SessionID, r.MemberID,
				fmt.Errorf("%w: reservation %d confirmed but no seat held", ledger.ErrConcurrencyConflict, r.ID))
		}
		return CancelResult{Outcome: ledger.NotFound}, nil
	}
	out.Outcome = res.Outcome

	fields := []zap.Field{
		zap.Uint64("reservation_id", r.ID),
		zap.Uint64("session_id", r.SessionID),
		zap.Uint64("member_id", r.MemberID),
		zap.Uint64("actor_id", actor.UserID),
	}
	if out.Promoted != nil {
		fields = append(fields, zap.Uint64("promoted_member_id", out.Promoted.MemberID))
	}
	s.logger.Info("reservation cancelled", fields...)

	ev := queue.NewEvent(queue.EventCancelled)
	ev.MemberID, ev.ReservationID = r.MemberID, r.ID
	s.publish(ctx, session, ev)
	if out.Promoted != nil {
		ev := queue.NewEvent(queue.EventPromoted)
		ev.MemberID, ev.ReservationID, ev.Promoted = out.Promoted.MemberID, out.Promoted.ID, true
		s.publish(ctx, session, ev)
	}
	return out, nil
}

// LeaveWaitlist removes memberID from a session's waitlist.  It answers
// NOT_FOUND when the member is not queued and never touches a held seat.
func (s *ReservationService) LeaveWaitlist(ctx context.Context, sessionID, memberID uint64) (ledger.Outcome, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.ensureLoaded(ctx, sessionID); err != nil {
		return "", err
	}
	pos, err := s.ledger.Position(ctx, sessionID, memberID)
	if err != nil {
		return "", err
	}
	if pos == 0 {
		return ledger.NotFound, nil
	}

	commit := func(ctx context.Context, ch ledger.Change) error {
		if ch.Outcome != ledger.LeftWaitlist {
			return errNoLongerWaitlisted
		}
		if err := s.reservations.LeaveWaitlist(ctx, sessionID, memberID); err != nil {
			return storeErr("leave waitlist", err)
		}
		return nil
	}
	res, err := s.ledger.Cancel(ctx, sessionID, memberID, commit)
	if errors.Is(err, errNoLongerWaitlisted) {
		return ledger.NotFound, nil
	}
	if err != nil {
		return "", s.fail("leave waitlist", sessionID, memberID, err)
	}
	if res.Outcome == ledger.LeftWaitlist {
		s.logger.Info("left waitlist",
			zap.Uint64("session_id", sessionID),
			zap.Uint64("member_id", memberID))
		ev := queue.NewEvent(queue.EventLeftWaitlist)
		ev.MemberID = memberID
		s.publish(ctx, session, ev)
	}
	return res.Outcome, nil
}

// WaitlistPosition returns the member's 1-based waitlist position, or 0
// when not queued.
func (s *ReservationService) WaitlistPosition(ctx context.Context, sessionID, memberID uint64) (int, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return 0, err
	}
	if err := s.ensureLoaded(ctx, sessionID); err != nil {
		return 0, err
	}
	return s.ledger.Position(ctx, sessionID, memberID)
}

// MarkAttended records that the member attended.  Only the session's
// trainer or an admin may do so.  The seat stays held.
func (s *ReservationService) MarkAttended(ctx context.Context, reservationID uint64, actor Actor) (model.Reservation, error) {
	r, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	session, err := s.sessions.Get(ctx, r.SessionID)
	if err != nil {
		return model.Reservation{}, err
	}
	if !s.canManage(actor, session) {
		return model.Reservation{}, ErrForbidden
	}
	updated, err := s.reservations.MarkAttended(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotActive) {
			return model.Reservation{}, ErrReservationNotConfirmed
		}
		return model.Reservation{}, fmt.Errorf("mark attended: %w", err)
	}

	s.logger.Info("attendance recorded",
		zap.Uint64("reservation_id", r.ID),
		zap.Uint64("session_id", r.SessionID),
		zap.Uint64("member_id", r.MemberID),
		zap.Uint64("actor_id", actor.UserID))
	ev := queue.NewEvent(queue.EventAttended)
	ev.MemberID, ev.ReservationID = r.MemberID, r.ID
	s.publish(ctx, session, ev)
	return updated, nil
}

// canManage reports whether actor runs or administers the session.
func (s *ReservationService) canManage(actor Actor, session model.ClassSession) bool {
	return actor.IsAdmin() || (actor.Role == model.RoleTrainer && session.TrainerID == actor.UserID)
}
