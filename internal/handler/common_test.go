package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

func TestOutcomeStatus(t *testing.T) {
	t.Parallel()

	tests := map[ledger.Outcome]int{
		ledger.Reserved:          http.StatusCreated,
		ledger.Waitlisted:        http.StatusAccepted,
		ledger.Full:              http.StatusConflict,
		ledger.AlreadyReserved:   http.StatusConflict,
		ledger.AlreadyWaitlisted: http.StatusConflict,
		ledger.Cancelled:         http.StatusOK,
		ledger.LeftWaitlist:      http.StatusOK,
		ledger.NotFound:          http.StatusNotFound,
	}
	for outcome, want := range tests {
		assert.Equal(t, want, outcomeStatus(outcome), outcome)
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
		body string
	}{
		{name: "validation", err: &service.ValidationError{Field: "capacity", Reason: "must be a positive integer"}, want: http.StatusBadRequest, body: "capacity"},
		{name: "session missing", err: fmt.Errorf("get: %w", service.ErrSessionNotFound), want: http.StatusNotFound, body: "class session not found"},
		{name: "reservation missing", err: service.ErrReservationNotFound, want: http.StatusNotFound, body: "reservation not found"},
		{name: "forbidden", err: service.ErrForbidden, want: http.StatusForbidden, body: "forbidden"},
		{name: "started", err: service.ErrSessionStarted, want: http.StatusConflict, body: "already started"},
		{name: "not confirmed", err: service.ErrReservationNotConfirmed, want: http.StatusConflict, body: "not confirmed"},
		{name: "conflict", err: fmt.Errorf("%w: reserve seat", ledger.ErrConcurrencyConflict), want: http.StatusInternalServerError, body: "concurrency conflict"},
		{name: "timeout", err: context.DeadlineExceeded, want: http.StatusServiceUnavailable, body: "timed out"},
		{name: "other", err: errors.New("disk on fire"), want: http.StatusInternalServerError, body: "internal error"},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, writeError(c, zap.NewNop(), tt.err))
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotContains(t, rec.Body.String(), "disk on fire")
		})
	}
}

func TestGetUserID(t *testing.T) {
	t.Parallel()

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := actor(c)
	assert.Error(t, err)

	c.Set("user_id", "12")
	id, err := getUserID(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	c.Set("user_id", uint64(5))
	c.Set("role", "TRAINER")
	a, err := actor(c)
	require.NoError(t, err)
	assert.Equal(t, service.Actor{UserID: 5, Role: "TRAINER"}, a)
}

type searchResult struct {
	query model.SessionQuery
	page  int
	size  int
	msg   string
}

func TestParseSearch(t *testing.T) {
	t.Parallel()

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	e := echo.New()
	parse := func(query string) (q searchResult) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/sessions?"+query, nil), httptest.NewRecorder())
		q.query, q.page, q.size, q.msg = parseSearch(c, now)
		return q
	}

	got := parse("q=spin&category=Cycling&level=beginner&trainer_id=4&page=3&page_size=10")
	require.Empty(t, got.msg)
	assert.Equal(t, "spin", got.query.Text)
	assert.Equal(t, "BEGINNER", got.query.Level)
	assert.Equal(t, uint64(4), got.query.TrainerID)
	assert.Equal(t, 10, got.query.Limit)
	assert.Equal(t, 20, got.query.Offset)
	require.NotNil(t, got.query.From)
	assert.Equal(t, now, *got.query.From)

	got = parse("from=2030-02-01T00:00:00Z&page_size=1000")
	require.Empty(t, got.msg)
	assert.Equal(t, 100, got.size)
	assert.Equal(t, 1, got.page)
	assert.Nil(t, got.query.To)
	assert.Equal(t, time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC), *got.query.From)

	got = parse("page=21474836&page_size=100")
	require.Empty(t, got.msg)
	assert.Equal(t, 21474835*100, got.query.Offset)

	for _, bad := range []string{
		"level=expert", "trainer_id=x", "from=yesterday", "to=2030-13-01",
		"page=100000000000000000&page_size=100", "page=2147483648",
	} {
		assert.NotEmpty(t, parse(bad).msg, bad)
	}
}
