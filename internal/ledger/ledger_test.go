package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
)

const (
	memberA uint64 = 101
	memberB uint64 = 102
	memberC uint64 = 103
	memberD uint64 = 104
)

func openSession(t *testing.T, capacity int) (*ledger.Ledger, uint64) {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.Open(1, capacity))
	return l, 1
}

func TestTryReserve_ConcurrentCallersNeverOverbook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity int
		callers  int
	}{
		{name: "more callers than seats", capacity: 5, callers: 64},
		{name: "exactly capacity", capacity: 16, callers: 16},
		{name: "fewer callers than seats", capacity: 30, callers: 7},
		{name: "single seat", capacity: 1, callers: 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, sid := openSession(t, tt.capacity)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				outcomes = map[ledger.Outcome]int{}
				start    = make(chan struct{})
			)
			for i := 0; i < tt.callers; i++ {
				wg.Add(1)
				go func(member uint64) {
					defer wg.Done()
					<-start
					res, err := l.TryReserve(context.Background(), sid, member, nil)
					assert.NoError(t, err)
					mu.Lock()
					outcomes[res.Outcome]++
					mu.Unlock()
				}(uint64(i + 1))
			}
			close(start)
			wg.Wait()

			want := min(tt.callers, tt.capacity)
			assert.Equal(t, want, outcomes[ledger.Reserved])
			assert.Equal(t, tt.callers-want, outcomes[ledger.Full])

			counts, err := l.Snapshot(context.Background(), sid)
			require.NoError(t, err)
			assert.Equal(t, want, counts.Enrolled)
		})
	}
}

func TestTryReserve_SameMemberConcurrentlyGetsOneSeat(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 10)

	var wg sync.WaitGroup
	results := make(chan ledger.Outcome, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.TryReserve(context.Background(), sid, memberA, nil)
			assert.NoError(t, err)
			results <- res.Outcome
		}()
	}
	wg.Wait()
	close(results)

	reserved := 0
	for o := range results {
		if o == ledger.Reserved {
			reserved++
		} else {
			assert.Equal(t, ledger.AlreadyReserved, o)
		}
	}
	assert.Equal(t, 1, reserved)
	counts, _ := l.Snapshot(context.Background(), sid)
	assert.Equal(t, 1, counts.Enrolled)
}

func TestTryReserve_AlreadyReservedOnRetry(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 3)
	ctx := context.Background()

	res, err := l.TryReserve(ctx, sid, memberA, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Reserved, res.Outcome)

	res, err = l.TryReserve(ctx, sid, memberA, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyReserved, res.Outcome)

	counts, _ := l.Snapshot(ctx, sid)
	assert.Equal(t, 1, counts.Enrolled)
}

func TestCancel_PromotesWaitlistHeadInFIFOOrder(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 2)
	ctx := context.Background()

	for _, m := range []uint64{memberA, memberB} {
		res, err := l.ReserveOrWait(ctx, sid, m, nil)
		require.NoError(t, err)
		require.Equal(t, ledger.Reserved, res.Outcome)
	}
	res, err := l.ReserveOrWait(ctx, sid, memberC, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Waitlisted, res.Outcome)
	assert.Equal(t, 1, res.Position)

	res, err = l.ReserveOrWait(ctx, sid, memberD, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Position)

	res, err = l.Cancel(ctx, sid, memberA, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Cancelled, res.Outcome)
	assert.Equal(t, memberC, res.Promoted)

	counts, _ := l.Snapshot(ctx, sid)
	assert.Equal(t, ledger.Counts{Enrolled: 2, Capacity: 2, WaitlistLength: 1}, counts)

	pos, _ := l.Position(ctx, sid, memberD)
	assert.Equal(t, 1, pos)

	res, err = l.TryReserve(ctx, sid, memberC, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyReserved, res.Outcome)
}

func TestCapacityTwo_WaitlistedMemberTakesFreedSeat(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 2)
	ctx := context.Background()

	a, _ := l.ReserveOrWait(ctx, sid, memberA, nil)
	b, _ := l.ReserveOrWait(ctx, sid, memberB, nil)
	c, _ := l.ReserveOrWait(ctx, sid, memberC, nil)
	assert.Equal(t, ledger.Reserved, a.Outcome)
	assert.Equal(t, ledger.Reserved, b.Outcome)
	assert.Equal(t, ledger.Waitlisted, c.Outcome)
	assert.Equal(t, 1, c.Position)

	res, err := l.Cancel(ctx, sid, memberA, nil)
	require.NoError(t, err)
	assert.Equal(t, memberC, res.Promoted)

	counts, _ := l.Snapshot(ctx, sid)
	assert.Equal(t, 2, counts.Enrolled)
	assert.Zero(t, counts.WaitlistLength)
}

func TestCancel_IsIdempotent(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)
	ctx := context.Background()

	_, err := l.TryReserve(ctx, sid, memberA, nil)
	require.NoError(t, err)

	res, err := l.Cancel(ctx, sid, memberA, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Cancelled, res.Outcome)

	res, err = l.Cancel(ctx, sid, memberA, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.NotFound, res.Outcome)

	counts, _ := l.Snapshot(ctx, sid)
	assert.Zero(t, counts.Enrolled)
}

func TestBookCancelBook_RoundTrip(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.TryReserve(ctx, sid, memberA, nil)
		require.NoError(t, err)
		require.Equal(t, ledger.Reserved, res.Outcome)
		counts, _ := l.Snapshot(ctx, sid)
		require.Equal(t, 1, counts.Enrolled)

		res, err = l.Cancel(ctx, sid, memberA, nil)
		require.NoError(t, err)
		require.Equal(t, ledger.Cancelled, res.Outcome)
		counts, _ = l.Snapshot(ctx, sid)
		require.Zero(t, counts.Enrolled)
	}
}

func TestCancel_ConcurrentWithDirectBookingDoesNotDoubleAssign(t *testing.T) {
	t.Parallel()

	for round := 0; round < 50; round++ {
		l, sid := openSession(t, 1)
		ctx := context.Background()
		_, _ = l.TryReserve(ctx, sid, memberA, nil)
		_, _ = l.ReserveOrWait(ctx, sid, memberB, nil)

		var wg sync.WaitGroup
		var direct ledger.Result
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Cancel(ctx, sid, memberA, nil)
		}()
		go func() {
			defer wg.Done()
			direct, _ = l.TryReserve(ctx, sid, memberC, nil)
		}()
		wg.Wait()

		// The freed seat always goes to the waitlisted member.
		assert.Equal(t, ledger.Full, direct.Outcome)
		counts, _ := l.Snapshot(ctx, sid)
		assert.Equal(t, 1, counts.Enrolled)
		assert.Zero(t, counts.WaitlistLength)
	}
}

func TestCommitFailure_LeavesStateUntouched(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)
	ctx := context.Background()
	boom := errors.New("db down")
	failing := func(context.Context, ledger.Change) error { return boom }

	_, err := l.TryReserve(ctx, sid, memberA, failing)
	require.ErrorIs(t, err, boom)
	counts, _ := l.Snapshot(ctx, sid)
	assert.Zero(t, counts.Enrolled)

	_, err = l.TryReserve(ctx, sid, memberA, nil)
	require.NoError(t, err)
	_, err = l.ReserveOrWait(ctx, sid, memberB, nil)
	require.NoError(t, err)

	_, err = l.Cancel(ctx, sid, memberA, failing)
	require.ErrorIs(t, err, boom)
	counts, _ = l.Snapshot(ctx, sid)
	assert.Equal(t, ledger.Counts{Enrolled: 1, Capacity: 1, WaitlistLength: 1}, counts)
}

func TestCommit_ReceivesChange(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)
	ctx := context.Background()

	var seen []ledger.Change
	record := func(_ context.Context, ch ledger.Change) error {
		seen = append(seen, ch)
		return nil
	}
	_, _ = l.TryReserve(ctx, sid, memberA, record)
	_, _ = l.ReserveOrWait(ctx, sid, memberB, record)
	_, _ = l.TryReserve(ctx, sid, memberC, record) // FULL, no change
	_, _ = l.Cancel(ctx, sid, memberA, record)

	require.Len(t, seen, 3)
	assert.Equal(t, ledger.Change{SessionID: sid, MemberID: memberA, Outcome: ledger.Reserved}, seen[0])
	assert.Equal(t, ledger.Change{SessionID: sid, MemberID: memberB, Outcome: ledger.Waitlisted, Position: 1}, seen[1])
	assert.Equal(t, ledger.Change{SessionID: sid, MemberID: memberA, Outcome: ledger.Cancelled, Promoted: memberB}, seen[2])
}

func TestCancel_LeavesWaitlist(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)
	ctx := context.Background()

	_, _ = l.TryReserve(ctx, sid, memberA, nil)
	_, _ = l.ReserveOrWait(ctx, sid, memberB, nil)
	_, _ = l.ReserveOrWait(ctx, sid, memberC, nil)

	res, err := l.Cancel(ctx, sid, memberB, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.LeftWaitlist, res.Outcome)

	pos, _ := l.Position(ctx, sid, memberC)
	assert.Equal(t, 1, pos)
	counts, _ := l.Snapshot(ctx, sid)
	assert.Equal(t, 1, counts.Enrolled)
	assert.Equal(t, 1, counts.WaitlistLength)
}

func TestReserveOrWait_AlreadyWaitlisted(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)
	ctx := context.Background()

	_, _ = l.TryReserve(ctx, sid, memberA, nil)
	_, _ = l.ReserveOrWait(ctx, sid, memberB, nil)

	res, err := l.ReserveOrWait(ctx, sid, memberB, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyWaitlisted, res.Outcome)
	assert.Equal(t, 1, res.Position)

	res, err = l.TryReserve(ctx, sid, memberB, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Full, res.Outcome)
}

func TestUnknownSessionIsAnError(t *testing.T) {
	t.Parallel()
	l := ledger.New()
	ctx := context.Background()

	_, err := l.TryReserve(ctx, 42, memberA, nil)
	assert.ErrorIs(t, err, ledger.ErrUnknownSession)
	_, err = l.Cancel(ctx, 42, memberA, nil)
	assert.ErrorIs(t, err, ledger.ErrUnknownSession)
	_, err = l.Snapshot(ctx, 42)
	assert.ErrorIs(t, err, ledger.ErrUnknownSession)
}

func TestOpenAndLoad(t *testing.T) {
	t.Parallel()
	l := ledger.New()

	assert.ErrorIs(t, l.Open(1, 0), ledger.ErrInvalidCapacity)
	require.NoError(t, l.Open(1, 2))
	assert.ErrorIs(t, l.Open(1, 2), ledger.ErrSessionExists)

	loaded, err := l.Load(2, 2, []uint64{memberA, memberB}, []uint64{memberC, memberA})
	require.NoError(t, err)
	assert.True(t, loaded)
	counts, _ := l.Snapshot(context.Background(), 2)
	assert.Equal(t, ledger.Counts{Enrolled: 2, Capacity: 2, WaitlistLength: 1}, counts)

	loaded, err = l.Load(2, 5, nil, nil)
	require.NoError(t, err)
	assert.False(t, loaded)

	_, err = l.Load(3, 1, []uint64{memberA, memberB}, nil)
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.False(t, l.Has(3))

	assert.Equal(t, []uint64{1, 2}, l.Sessions())
	l.Forget(1)
	assert.Equal(t, []uint64{2}, l.Sessions())
}

func TestLockWaitHonoursContext(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)

	release := make(chan struct{})
	entered := make(chan struct{})
	slow := func(context.Context, ledger.Change) error {
		close(entered)
		<-release
		return nil
	}
	go func() { _, _ = l.TryReserve(context.Background(), sid, memberA, slow) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.TryReserve(ctx, sid, memberB, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestReadsHonourContextWhileCommitHoldsLock(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 1)

	release := make(chan struct{})
	entered := make(chan struct{})
	slow := func(context.Context, ledger.Change) error {
		close(entered)
		<-release
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.TryReserve(context.Background(), sid, memberA, slow)
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Snapshot(ctx, sid)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = l.Position(ctx, sid, memberB)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	counts, err := l.Snapshot(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Enrolled)
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()
	l := ledger.New()
	require.NoError(t, l.Open(1, 1))
	require.NoError(t, l.Open(2, 1))

	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := func(context.Context, ledger.Change) error {
		close(entered)
		<-release
		return nil
	}
	go func() { _, _ = l.TryReserve(context.Background(), 1, memberA, blocking) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := l.TryReserve(ctx, 2, memberB, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Reserved, res.Outcome)
	close(release)
}

func TestInspectSeesCommittedCounts(t *testing.T) {
	t.Parallel()
	l, sid := openSession(t, 2)
	ctx := context.Background()
	_, _ = l.TryReserve(ctx, sid, memberA, nil)

	var seen ledger.Counts
	err := l.Inspect(ctx, sid, func(c ledger.Counts) error {
		seen = c
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.Counts{Enrolled: 1, Capacity: 2}, seen)

	boom := errors.New("mismatch")
	assert.ErrorIs(t, l.Inspect(ctx, sid, func(ledger.Counts) error { return boom }), boom)
	assert.ErrorIs(t, l.Inspect(ctx, 99, func(ledger.Counts) error { return nil }), ledger.ErrUnknownSession)
}
