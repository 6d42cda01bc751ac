package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
)

// SessionRepo persists class sessions.
type SessionRepo struct{ db *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `s.id, s.name, COALESCE(s.description, ''), s.category, s.level, s.trainer_id,
	s.starts_at, s.ends_at, s.capacity, s.location, s.created_at`

func scanSession(row interface{ Scan(...any) error }, s *model.ClassSession) error {
	return row.Scan(&s.ID, &s.Name, &s.Description, &s.Category, &s.Level, &s.TrainerID,
		&s.StartsAt, &s.EndsAt, &s.Capacity, &s.Location, &s.CreatedAt)
}

// Create inserts a session and fills in its ID and creation time.
func (r *SessionRepo) Create(ctx context.Context, s *model.ClassSession) error {
	const q = `INSERT INTO class_sessions
		(name, description, category, level, trainer_id, starts_at, ends_at, capacity, location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var desc any
	if s.Description != "" {
		desc = s.Description
	}
	res, err := r.db.ExecContext(ctx, q, s.Name, desc, s.Category, s.Level, s.TrainerID,
		s.StartsAt.UTC(), s.EndsAt.UTC(), s.Capacity, s.Location)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt = time.Now().UTC()
	return nil
}

// Get returns a session by id.
func (r *SessionRepo) Get(ctx context.Context, id uint64) (model.ClassSession, error) {
	var s model.ClassSession
	err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM class_sessions s WHERE s.id = ?`, id), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrSessionNotFound
	}
	return s, err
}

// ListActive returns sessions that have not ended before since, ordered
// by start time.
func (r *SessionRepo) ListActive(ctx context.Context, since time.Time) ([]model.ClassSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM class_sessions s WHERE s.ends_at >= ? ORDER BY s.starts_at, s.id`,
		since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ClassSession, 0)
	for rows.Next() {
		var s model.ClassSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Search returns the sessions matching q and the total match count.
func (r *SessionRepo) Search(ctx context.Context, q model.SessionQuery) ([]model.ClassSession, int64, error) {
	where := []string{}
	args := []any{}

	if q.Text != "" {
		where = append(where, "(LOWER(s.name) LIKE ? OR LOWER(s.description) LIKE ?)")
		like := "%" + strings.ToLower(q.Text) + "%"
		args = append(args, like, like)
	}
	if q.Category != "" {
		where = append(where, "LOWER(s.category) = ?")
		args = append(args, strings.ToLower(q.Category))
	}
	if q.Level != "" {
		where = append(where, "s.level = ?")
		args = append(args, q.Level)
	}
	if q.TrainerID != 0 {
		where = append(where, "s.trainer_id = ?")
		args = append(args, q.TrainerID)
	}
	if q.From != nil {
		where = append(where, "s.starts_at >= ?")
		args = append(args, q.From.UTC())
	}
	if q.To != nil {
		where = append(where, "s.starts_at < ?")
		args = append(args, q.To.UTC())
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM class_sessions s WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT ` + sessionColumns + ` FROM class_sessions s WHERE ` + cond + `
		ORDER BY s.starts_at ASC, s.id ASC
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, dataSQL, append(append([]any{}, args...), q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.ClassSession, 0, q.Limit)
	for rows.Next() {
		var s model.ClassSession
		if err := scanSession(rows, &s); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Roster loads a session with its seat holders and FIFO waitlist.
func (r *SessionRepo) Roster(ctx context.Context, id uint64) (model.SessionRoster, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return model.SessionRoster{}, err
	}
	roster := model.SessionRoster{Session: s}

	roster.Holders, err = r.memberIDs(ctx,
		`SELECT member_id FROM reservations WHERE session_id = ? AND status IN ('CONFIRMED','ATTENDED') ORDER BY id`, id)
	if err != nil {
		return model.SessionRoster{}, err
	}
	roster.Waitlist, err = r.memberIDs(ctx,
		`SELECT member_id FROM waitlist_entries WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return model.SessionRoster{}, err
	}
	return roster, nil
}

func (r *SessionRepo) memberIDs(ctx context.Context, q string, sessionID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
