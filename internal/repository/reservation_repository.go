package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
)

// ReservationRepo persists reservations, waitlist entries and the audit
// log.  Every state change runs in one transaction that first locks the
// session row, so writers on the same session are serialised in the
// database as well as in the ledger.
type ReservationRepo struct{ db *sql.DB }

func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, session_id, member_id, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }, r *model.Reservation) error {
	return row.Scan(&r.ID, &r.SessionID, &r.MemberID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
}

// ReserveSeat inserts a CONFIRMED reservation.  It re-counts the stored
// seats under the session row lock and refuses with ErrCapacityExceeded
// rather than overbook.
func (r *ReservationRepo) ReserveSeat(ctx context.Context, sessionID, memberID uint64) (model.Reservation, error) {
	var out model.Reservation
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		capacity, err := r.lockSessionTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		seats, err := r.countSeatsTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if seats >= capacity {
			return fmt.Errorf("session %d holds %d/%d: %w", sessionID, seats, capacity, ErrCapacityExceeded)
		}
		out, err = r.insertReservationTx(ctx, tx, sessionID, memberID)
		if err != nil {
			return err
		}
		return r.appendAuditTx(ctx, tx, sessionID, memberID, &out.ID, model.AuditReserved)
	})
	return out, err
}

// EnqueueWaitlist appends memberID to the session's waitlist.
func (r *ReservationRepo) EnqueueWaitlist(ctx context.Context, sessionID, memberID uint64) (model.WaitlistEntry, error) {
	var out model.WaitlistEntry
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := r.lockSessionTx(ctx, tx, sessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO waitlist_entries (session_id, member_id) VALUES (?, ?)`, sessionID, memberID)
		if err != nil {
			if isDuplicate(err) {
				return ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out = model.WaitlistEntry{ID: uint64(id), SessionID: sessionID, MemberID: memberID, CreatedAt: time.Now().UTC()}
		return r.appendAuditTx(ctx, tx, sessionID, memberID, nil, model.AuditWaitlisted)
	})
	return out, err
}

// CancelReservation moves a CONFIRMED reservation to CANCELLED.  When
// promote is non-zero that member's waitlist entry is consumed and a new
// CONFIRMED reservation is created for them in the same transaction.
func (r *ReservationRepo) CancelReservation(ctx context.Context, reservationID, promote uint64) (model.Reservation, *model.Reservation, error) {
	var (
		cancelled model.Reservation
		promoted  *model.Reservation
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := r.getTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if _, err := r.lockSessionTx(ctx, tx, cur.SessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = 'CANCELLED', active_key = NULL WHERE id = ? AND status = 'CONFIRMED'`,
			reservationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrReservationNotActive
		}
		if err := r.appendAuditTx(ctx, tx, cur.SessionID, cur.MemberID, &cur.ID, model.AuditCancelled); err != nil {
			return err
		}
		if cancelled, err = r.getTx(ctx, tx, reservationID); err != nil {
			return err
		}
		if promote == 0 {
			return nil
		}

		if err := r.deleteWaitlistTx(ctx, tx, cur.SessionID, promote); err != nil {
			return fmt.Errorf("promote member %d: %w", promote, err)
		}
		p, err := r.insertReservationTx(ctx, tx, cur.SessionID, promote)
		if err != nil {
			return err
		}
		promoted = &p
		return r.appendAuditTx(ctx, tx, cur.SessionID, promote, &p.ID, model.AuditPromoted)
	})
	if err != nil {
		return model.Reservation{}, nil, err
	}
	return cancelled, promoted, nil
}

// LeaveWaitlist removes memberID from the waitlist.
func (r *ReservationRepo) LeaveWaitlist(ctx context.Context, sessionID, memberID uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := r.lockSessionTx(ctx, tx, sessionID); err != nil {
			return err
		}
		if err := r.deleteWaitlistTx(ctx, tx, sessionID, memberID); err != nil {
			return err
		}
		return r.appendAuditTx(ctx, tx, sessionID, memberID, nil, model.AuditLeftWaitlist)
	})
}

// MarkAttended moves a CONFIRMED reservation to ATTENDED.  The seat stays
// held.
func (r *ReservationRepo) MarkAttended(ctx context.Context, reservationID uint64) (model.Reservation, error) {
	var out model.Reservation
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = 'ATTENDED' WHERE id = ? AND status = 'CONFIRMED'`, reservationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := r.getTx(ctx, tx, reservationID); err != nil {
				return err
			}
			return ErrReservationNotActive
		}
		if out, err = r.getTx(ctx, tx, reservationID); err != nil {
			return err
		}
		return r.appendAuditTx(ctx, tx, out.SessionID, out.MemberID, &out.ID, model.AuditAttended)
	})
	return out, err
}

// Get returns a reservation by id.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	var out model.Reservation
	err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id), &out)
	if errors.Is(err, sql.ErrNoRows) {
		return out, ErrReservationNotFound
	}
	return out, err
}

// ListByMember returns a member's reservations, newest first.
func (r *ReservationRepo) ListByMember(ctx context.Context, memberID uint64) ([]model.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE member_id = ? ORDER BY id DESC`, memberID)
}

// ListBySession returns a session's reservations in booking order.
func (r *ReservationRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE session_id = ? ORDER BY id`, sessionID)
}

func (r *ReservationRepo) list(ctx context.Context, q string, arg uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var res model.Reservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Waitlist returns the session's waitlist in FIFO order.
func (r *ReservationRepo) Waitlist(ctx context.Context, sessionID uint64) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, member_id, created_at FROM waitlist_entries WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.WaitlistEntry, 0)
	for rows.Next() {
		var w model.WaitlistEntry
		if err := rows.Scan(&w.ID, &w.SessionID, &w.MemberID, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListAudit returns the audit trail of a session in append order.
func (r *ReservationRepo) ListAudit(ctx context.Context, sessionID uint64) ([]model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, member_id, reservation_id, action, created_at
		 FROM reservation_audit WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			a     model.AuditEntry
			resID sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.MemberID, &resID, &a.Action, &a.CreatedAt); err != nil {
			return nil, err
		}
		if resID.Valid {
			id := uint64(resID.Int64)
			a.ReservationID = &id
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// lockSessionTx takes the row lock on the session and returns its capacity.
func (r *ReservationRepo) lockSessionTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (int, error) {
	var capacity int
	err := tx.QueryRowContext(ctx,
		`SELECT capacity FROM class_sessions WHERE id = ? FOR UPDATE`, sessionID).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSessionNotFound
	}
	return capacity, err
}

func (r *ReservationRepo) countSeatsTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE session_id = ? AND status IN ('CONFIRMED','ATTENDED')`,
		sessionID).Scan(&n)
	return n, err
}

func (r *ReservationRepo) insertReservationTx(ctx context.Context, tx *sql.Tx, sessionID, memberID uint64) (model.Reservation, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (session_id, member_id, status, active_key) VALUES (?, ?, 'CONFIRMED', ?)`,
		sessionID, memberID, sessionID)
	if err != nil {
		if isDuplicate(err) {
			return model.Reservation{}, ErrConflict
		}
		return model.Reservation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Reservation{}, err
	}
	return r.getTx(ctx, tx, uint64(id))
}

func (r *ReservationRepo) deleteWaitlistTx(ctx context.Context, tx *sql.Tx, sessionID, memberID uint64) error {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM waitlist_entries WHERE session_id = ? AND member_id = ?`, sessionID, memberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotWaitlisted
	}
	return nil
}

func (r *ReservationRepo) appendAuditTx(ctx context.Context, tx *sql.Tx, sessionID, memberID uint64, reservationID *uint64, action string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reservation_audit (session_id, member_id, reservation_id, action) VALUES (?, ?, ?, ?)`,
		sessionID, memberID, reservationID, action)
	return err
}

func (r *ReservationRepo) getTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	var out model.Reservation
	err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id), &out)
	if errors.Is(err, sql.ErrNoRows) {
		return out, ErrReservationNotFound
	}
	return out, err
}
