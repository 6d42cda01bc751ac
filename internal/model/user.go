package model

import "time"

// User roles.
const (
	RoleAdmin   = "ADMIN"
	RoleTrainer = "TRAINER"
	RoleMember  = "MEMBER"
)

// User represents an application user record as stored in the
// `users` table.  Handlers define their own response types, so the
// password hash never leaves the repository layer.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Name         – display name.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN, TRAINER or MEMBER.
//  IsActive     – whether the account may log in.
type User struct {
	ID           uint64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken models an entry in the `refresh_tokens` table.  The
// plain token is never stored, only its SHA-256 hex digest.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
