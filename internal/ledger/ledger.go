// Package ledger keeps the authoritative seat accounting for class
// sessions.  Each session carries its capacity, the set of members holding
// a seat and a FIFO waitlist.  Every check-and-mutate on a session runs
// inside that session's critical section, so the number of holders can
// never exceed capacity regardless of how many callers race for the last
// seat.  Sessions are independent of each other and are never serialised
// against one another.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Outcome is the typed result of a ledger operation.  FULL and the
// ALREADY_* outcomes are normal results and are never returned as errors.
type Outcome string

const (
	Reserved          Outcome = "RESERVED"
	AlreadyReserved   Outcome = "ALREADY_RESERVED"
	Full              Outcome = "FULL"
	Waitlisted        Outcome = "WAITLISTED"
	AlreadyWaitlisted Outcome = "ALREADY_WAITLISTED"
	Cancelled         Outcome = "CANCELLED"
	LeftWaitlist      Outcome = "LEFT_WAITLIST"
	NotFound          Outcome = "NOT_FOUND"
)

var (
	// ErrUnknownSession is returned when an operation references a
	// session that has not been opened or loaded.
	ErrUnknownSession = errors.New("ledger: unknown session")
	// ErrInvalidCapacity is returned by Open and Load for capacity < 1.
	ErrInvalidCapacity = errors.New("ledger: capacity must be positive")
	// ErrSessionExists is returned by Open for an already known session.
	ErrSessionExists = errors.New("ledger: session already open")
	// ErrConcurrencyConflict signals that the seat invariant was found
	// broken.  It indicates a bug or a second writer and must be logged
	// and investigated, never retried.
	ErrConcurrencyConflict = errors.New("ledger: concurrency conflict")
)

// Change describes a state transition about to be applied to a session.
// It is handed to the CommitFunc so the caller can persist the same
// transition atomically with the in-memory one.
type Change struct {
	SessionID uint64
	MemberID  uint64
	Outcome   Outcome
	// Promoted is the waitlisted member receiving the released seat on
	// a CANCELLED change; zero when nobody was promoted.
	Promoted uint64
	// Position is the 1-based waitlist position on a WAITLISTED change.
	Position int
}

// CommitFunc persists a Change.  It runs while the session lock is held;
// when it returns an error the ledger state is left untouched and the
// error is returned to the caller.  A nil CommitFunc is allowed.
type CommitFunc func(ctx context.Context, ch Change) error

// Result is returned by the reserve and cancel operations.
type Result struct {
	Outcome  Outcome
	Position int
	Promoted uint64
}

// Counts is the per-session projection consumed by the read model.
type Counts struct {
	Enrolled       int
	Capacity       int
	WaitlistLength int
}

type session struct {
	// sem is a one-slot semaphore; a channel rather than a sync.Mutex so
	// that waiting for the lock can be abandoned with the context.
	sem      chan struct{}
	capacity int
	holders  map[uint64]struct{}
	waitlist *waitQueue
}

func newSession(capacity int, holders, waitlist []uint64) *session {
	s := &session{
		sem:      make(chan struct{}, 1),
		capacity: capacity,
		holders:  make(map[uint64]struct{}, capacity),
		waitlist: newWaitQueue(nil),
	}
	for _, m := range holders {
		s.holders[m] = struct{}{}
	}
	for _, m := range waitlist {
		if _, holds := s.holders[m]; !holds {
			s.waitlist.push(m)
		}
	}
	return s
}

func (s *session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) unlock() { <-s.sem }

// Ledger holds the seat state of every known session.
type Ledger struct {
	mu       sync.RWMutex
	sessions map[uint64]*session
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{sessions: make(map[uint64]*session)}
}

// Open registers a freshly scheduled session with no holders.
func (l *Ledger) Open(sessionID uint64, capacity int) error {
	if capacity < 1 {
		return ErrInvalidCapacity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[sessionID]; ok {
		return ErrSessionExists
	}
	l.sessions[sessionID] = newSession(capacity, nil, nil)
	return nil
}

// Load rebuilds a session from persisted state.  It is a no-op returning
// false when the session is already present, so concurrent lazy loads
// of the same session are harmless.  Holders beyond capacity are
// rejected with ErrConcurrencyConflict since such a state must never
// have been persisted.
func (l *Ledger) Load(sessionID uint64, capacity int, holders, waitlist []uint64) (bool, error) {
	if capacity < 1 {
		return false, ErrInvalidCapacity
	}
	s := newSession(capacity, holders, waitlist)
	if len(s.holders) > capacity {
		return false, ErrConcurrencyConflict
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[sessionID]; ok {
		return false, nil
	}
	l.sessions[sessionID] = s
	return true, nil
}

// Forget drops a session, typically once it has ended.
func (l *Ledger) Forget(sessionID uint64) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}

// Has reports whether the session is loaded.
func (l *Ledger) Has(sessionID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sessions[sessionID]
	return ok
}

// Sessions returns the loaded session IDs in ascending order.
func (l *Ledger) Sessions() []uint64 {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.sessions))
	for id := range l.sessions {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (l *Ledger) get(sessionID uint64) (*session, error) {
	l.mu.RLock()
	s, ok := l.sessions[sessionID]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// TryReserve claims a seat for memberID.  Concurrent callers racing for
// the last seat see exactly one RESERVED; the rest see FULL.
func (l *Ledger) TryReserve(ctx context.Context, sessionID, memberID uint64, commit CommitFunc) (Result, error) {
	return l.reserve(ctx, sessionID, memberID, false, commit)
}

// ReserveOrWait behaves like TryReserve but queues the member on the
// waitlist instead of answering FULL.  The capacity check and the
// enqueue happen in one critical section.
func (l *Ledger) ReserveOrWait(ctx context.Context, sessionID, memberID uint64, commit CommitFunc) (Result, error) {
	return l.reserve(ctx, sessionID, memberID, true, commit)
}

func (l *Ledger) reserve(ctx context.Context, sessionID, memberID uint64, wait bool, commit CommitFunc) (Result, error) {
	s, err := l.get(sessionID)
	if err != nil {
		return Result{}, err
	}
	if err := s.lock(ctx); err != nil {
		return Result{}, err
	}
	defer s.unlock()

	if _, holds := s.holders[memberID]; holds {
		return Result{Outcome: AlreadyReserved}, nil
	}
	if pos := s.waitlist.position(memberID); pos > 0 {
		if wait {
			return Result{Outcome: AlreadyWaitlisted, Position: pos}, nil
		}
		return Result{Outcome: Full}, nil
	}
	switch {
	case len(s.holders) > s.capacity:
		return Result{}, ErrConcurrencyConflict
	// A non-empty waitlist means queued members come first.
	case len(s.holders) < s.capacity && s.waitlist.len() == 0:
		ch := Change{SessionID: sessionID, MemberID: memberID, Outcome: Reserved}
		if err := apply(ctx, commit, ch); err != nil {
			return Result{}, err
		}
		s.holders[memberID] = struct{}{}
		return Result{Outcome: Reserved}, nil
	case !wait:
		return Result{Outcome: Full}, nil
	}

	pos := s.waitlist.len() + 1
	ch := Change{SessionID: sessionID, MemberID: memberID, Outcome: Waitlisted, Position: pos}
	if err := apply(ctx, commit, ch); err != nil {
		return Result{}, err
	}
	s.waitlist.push(memberID)
	return Result{Outcome: Waitlisted, Position: pos}, nil
}

// Cancel releases memberID's seat, or removes the member from the
// waitlist.  When a seat is released and the waitlist is not empty the
// head of the waitlist is promoted in the same critical section, so no
// concurrent TryReserve can observe the freed seat.  Cancelling a member
// holding nothing answers NOT_FOUND and never releases a seat twice.
func (l *Ledger) Cancel(ctx context.Context, sessionID, memberID uint64, commit CommitFunc) (Result, error) {
	s, err := l.get(sessionID)
	if err != nil {
		return Result{}, err
	}
	if err := s.lock(ctx); err != nil {
		return Result{}, err
	}
	defer s.unlock()

	if s.waitlist.contains(memberID) {
		ch := Change{SessionID: sessionID, MemberID: memberID, Outcome: LeftWaitlist}
		if err := apply(ctx, commit, ch); err != nil {
			return Result{}, err
		}
		s.waitlist.remove(memberID)
		return Result{Outcome: LeftWaitlist}, nil
	}
	if _, holds := s.holders[memberID]; !holds {
		return Result{Outcome: NotFound}, nil
	}

	ch := Change{SessionID: sessionID, MemberID: memberID, Outcome: Cancelled}
	if next, ok := s.waitlist.head(); ok && len(s.holders)-1 < s.capacity {
		ch.Promoted = next
	}
	if err := apply(ctx, commit, ch); err != nil {
		return Result{}, err
	}
	delete(s.holders, memberID)
	if ch.Promoted != 0 {
		s.waitlist.pop()
		s.holders[ch.Promoted] = struct{}{}
	}
	return Result{Outcome: Cancelled, Promoted: ch.Promoted}, nil
}

// Snapshot returns the current counts of a session.  Readers take the
// session lock so they never see a half-applied change; the wait ends
// with ctx.
func (l *Ledger) Snapshot(ctx context.Context, sessionID uint64) (Counts, error) {
	var out Counts
	err := l.Inspect(ctx, sessionID, func(c Counts) error {
		out = c
		return nil
	})
	return out, err
}

// Inspect runs fn with the session's counts while holding its lock, so
// fn can compare them against persisted state without a concurrent
// change slipping in between.
func (l *Ledger) Inspect(ctx context.Context, sessionID uint64, fn func(Counts) error) error {
	s, err := l.get(sessionID)
	if err != nil {
		return err
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return fn(Counts{
		Enrolled:       len(s.holders),
		Capacity:       s.capacity,
		WaitlistLength: s.waitlist.len(),
	})
}

// Position returns the 1-based waitlist position of memberID, or 0.
func (l *Ledger) Position(ctx context.Context, sessionID, memberID uint64) (int, error) {
	s, err := l.get(sessionID)
	if err != nil {
		return 0, err
	}
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()
	return s.waitlist.position(memberID), nil
}

func apply(ctx context.Context, commit CommitFunc, ch Change) error {
	if commit == nil {
		return nil
	}
	return commit(ctx, ch)
}
