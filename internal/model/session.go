package model

import "time"

// Session levels mirror the difficulty tags shown in the class catalog.
const (
	LevelBeginner     = "BEGINNER"
	LevelIntermediate = "INTERMEDIATE"
	LevelAdvanced     = "ADVANCED"
)

// ClassSession is a scheduled occurrence of a gym class with a fixed
// number of seats.  It corresponds to a row in the `class_sessions`
// table and is immutable once scheduled.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – class name shown in the catalog (e.g. "Morning Yoga").
//  Description – optional free text.
//  Category    – catalog category (yoga, hiit, strength, ...).
//  Level       – BEGINNER, INTERMEDIATE or ADVANCED.
//  TrainerID   – user ID of the trainer running the session.
//  StartsAt    – when the session begins.
//  EndsAt      – when the session ends (after StartsAt).
//  Capacity    – maximum number of seat holders, always positive.
//  Location    – studio or room name.
type ClassSession struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Level       string    `json:"level"`
	TrainerID   uint64    `json:"trainer_id"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidLevel reports whether level is one of the known session levels.
func ValidLevel(level string) bool {
	switch level {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// SessionQuery carries the optional filters of the public catalog search.
// Zero values mean "no filter".
type SessionQuery struct {
	Text      string
	Category  string
	Level     string
	TrainerID uint64
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// SessionRoster is the persisted seat state of one session, used to
// rebuild the in-memory ledger.  Waitlist is in FIFO order.
type SessionRoster struct {
	Session  ClassSession
	Holders  []uint64
	Waitlist []uint64
}
