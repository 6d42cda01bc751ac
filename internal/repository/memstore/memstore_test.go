package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

func newSession(t *testing.T, s *Store, capacity int, start time.Time) model.ClassSession {
	t.Helper()
	cs := model.ClassSession{
		Name: "Morning Yoga", Category: "yoga", Level: model.LevelBeginner, TrainerID: 9,
		StartsAt: start, EndsAt: start.Add(time.Hour), Capacity: capacity, Location: "Studio A",
	}
	require.NoError(t, s.Sessions.Create(context.Background(), &cs))
	return cs
}

func TestReservationLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	cs := newSession(t, s, 1, time.Now().Add(time.Hour))

	a, err := s.Reservations.ReserveSeat(ctx, cs.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, a.Status)

	_, err = s.Reservations.ReserveSeat(ctx, cs.ID, 2)
	assert.ErrorIs(t, err, repository.ErrCapacityExceeded)

	_, err = s.Reservations.EnqueueWaitlist(ctx, cs.ID, 2)
	require.NoError(t, err)
	_, err = s.Reservations.EnqueueWaitlist(ctx, cs.ID, 2)
	assert.ErrorIs(t, err, repository.ErrConflict)

	cancelled, promoted, err := s.Reservations.CancelReservation(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, cancelled.Status)
	require.NotNil(t, promoted)
	assert.Equal(t, uint64(2), promoted.MemberID)

	_, _, err = s.Reservations.CancelReservation(ctx, a.ID, 0)
	assert.ErrorIs(t, err, repository.ErrReservationNotActive)

	roster, err := s.Sessions.Roster(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, roster.Holders)
	assert.Empty(t, roster.Waitlist)

	att, err := s.Reservations.MarkAttended(ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationAttended, att.Status)
	_, err = s.Reservations.MarkAttended(ctx, promoted.ID)
	assert.ErrorIs(t, err, repository.ErrReservationNotActive)

	audit, err := s.Reservations.ListAudit(ctx, cs.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(audit))
	for _, e := range audit {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		model.AuditReserved, model.AuditWaitlisted, model.AuditCancelled, model.AuditPromoted, model.AuditAttended,
	}, actions)
}

func TestCancelPromotingUnknownMemberChangesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	cs := newSession(t, s, 1, time.Now().Add(time.Hour))
	a, err := s.Reservations.ReserveSeat(ctx, cs.ID, 1)
	require.NoError(t, err)

	_, _, err = s.Reservations.CancelReservation(ctx, a.ID, 77)
	require.ErrorIs(t, err, repository.ErrNotWaitlisted)

	got, err := s.Reservations.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, got.Status)
}

func TestFailNextWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	cs := newSession(t, s, 2, time.Now().Add(time.Hour))

	boom := errors.New("disk full")
	s.Reservations.FailNextWrite(boom)
	_, err := s.Reservations.ReserveSeat(ctx, cs.ID, 1)
	assert.ErrorIs(t, err, boom)

	_, err = s.Reservations.ReserveSeat(ctx, cs.ID, 1)
	assert.NoError(t, err)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	base := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	yoga := newSession(t, s, 10, base.Add(2*time.Hour))
	hiit := model.ClassSession{
		Name: "HIIT Blast", Description: "interval training", Category: "HIIT", Level: model.LevelAdvanced,
		TrainerID: 3, StartsAt: base, EndsAt: base.Add(time.Hour), Capacity: 5, Location: "Hall",
	}
	require.NoError(t, s.Sessions.Create(ctx, &hiit))

	from := base.Add(time.Hour)
	tests := []struct {
		name  string
		q     model.SessionQuery
		want  []uint64
		total int64
	}{
		{name: "all ordered by start", q: model.SessionQuery{Limit: 10}, want: []uint64{hiit.ID, yoga.ID}, total: 2},
		{name: "text matches description", q: model.SessionQuery{Text: "INTERVAL", Limit: 10}, want: []uint64{hiit.ID}, total: 1},
		{name: "category is case insensitive", q: model.SessionQuery{Category: "hiit", Limit: 10}, want: []uint64{hiit.ID}, total: 1},
		{name: "level", q: model.SessionQuery{Level: model.LevelBeginner, Limit: 10}, want: []uint64{yoga.ID}, total: 1},
		{name: "trainer", q: model.SessionQuery{TrainerID: 3, Limit: 10}, want: []uint64{hiit.ID}, total: 1},
		{name: "from", q: model.SessionQuery{From: &from, Limit: 10}, want: []uint64{yoga.ID}, total: 1},
		{name: "paging", q: model.SessionQuery{Limit: 1, Offset: 1}, want: []uint64{yoga.ID}, total: 2},
		{name: "offset past end", q: model.SessionQuery{Limit: 1, Offset: 5}, want: []uint64{}, total: 2},
		{name: "negative offset", q: model.SessionQuery{Limit: 1, Offset: -100}, want: []uint64{}, total: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.Sessions.Search(ctx, tt.q)
			require.NoError(t, err)
			ids := make([]uint64, 0, len(got))
			for _, cs := range got {
				ids = append(ids, cs.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.total, total)
		})
	}
}

func TestUsersAndTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	id, err := s.Users.Create(ctx, "Ann", " Ann@Gym.Test ", "pw", model.RoleMember, bcrypt.MinCost)
	require.NoError(t, err)
	_, err = s.Users.Create(ctx, "Ann 2", "ann@gym.test", "pw", model.RoleMember, bcrypt.MinCost)
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	u, err := s.Users.GetByEmail(ctx, "ANN@gym.test")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	_, err = s.Users.GetByID(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	require.NoError(t, s.Tokens.StoreRefresh(ctx, id, "h1", time.Now().Add(time.Hour)))
	require.NoError(t, s.Tokens.StoreRefresh(ctx, id, "h2", time.Now().Add(-time.Hour)))

	got, err := s.Tokens.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	_, err = s.Tokens.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, repository.ErrTokenInvalid)

	require.NoError(t, s.Tokens.RevokeAllForUser(ctx, id))
	_, err = s.Tokens.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrTokenInvalid)
}
