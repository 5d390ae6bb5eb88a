package domain

import "time"

// User mirrors the persisted representation in the users table. PasswordHash is
// only read by the credential verifier and never exposed through the API.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	FailedAttempts    int
	LockedUntil       *time.Time
	PasswordChangedAt *time.Time
	IsActive          bool
	CreatedAt         time.Time
}

// LockState reports the lockout state of the user at the supplied instant.
func (u User) LockState(now time.Time) LockoutState {
	return LockSnapshot{FailedAttempts: u.FailedAttempts, LockedUntil: u.LockedUntil}.State(now)
}

// PasswordHistoryEntry tracks historical password hashes for reuse prevention.
type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
}

// Principal is the verified caller attached to an inbound request by the identity provider.
type Principal struct {
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
}
