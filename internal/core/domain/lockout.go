package domain

import "time"

// LockoutState enumerates the per-account lockout states.
type LockoutState string

const (
	LockoutOpen    LockoutState = "OPEN"
	LockoutLocked  LockoutState = "LOCKED"
	LockoutExpired LockoutState = "EXPIRED_LOCK"
)

// LockoutPolicy is the subset of security settings governing lockout.
type LockoutPolicy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	AutoUnlock        bool
}

// LockSnapshot is the lockout-relevant slice of a user row.
type LockSnapshot struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// State classifies the snapshot at now.
func (s LockSnapshot) State(now time.Time) LockoutState {
	if s.LockedUntil == nil {
		return LockoutOpen
	}
	if s.LockedUntil.After(now) {
		return LockoutLocked
	}
	return LockoutExpired
}

// FailureOutcome describes the result of recording one failed attempt.
type FailureOutcome struct {
	FailedAttempts int
	LockedUntil    *time.Time
	// Crossed is set only on the attempt that moved the account into LOCKED.
	Crossed bool
	// AlreadyLocked means the attempt hit a locked account and changed nothing.
	AlreadyLocked bool
}

// Changed reports whether the outcome must be written back.
func (o FailureOutcome) Changed() bool {
	return !o.AlreadyLocked
}

// ApplyFailure computes the next lockout state for one failed attempt.
// Callers must serialize invocations per user.
func ApplyFailure(current LockSnapshot, policy LockoutPolicy, now time.Time) FailureOutcome {
	switch current.State(now) {
	case LockoutLocked:
		return FailureOutcome{
			FailedAttempts: current.FailedAttempts,
			LockedUntil:    current.LockedUntil,
			AlreadyLocked:  true,
		}
	case LockoutExpired:
		if !policy.AutoUnlock {
			return FailureOutcome{
				FailedAttempts: current.FailedAttempts,
				LockedUntil:    current.LockedUntil,
				AlreadyLocked:  true,
			}
		}
		current = LockSnapshot{}
	}

	next := current.FailedAttempts + 1
	out := FailureOutcome{FailedAttempts: next}

	threshold := policy.MaxFailedAttempts
	if threshold <= 0 {
		threshold = DefaultMaxFailedAttempts
	}
	if next >= threshold {
		until := now.Add(policy.LockoutDuration)
		out.LockedUntil = &until
		out.Crossed = true
	}

	return out
}

// LockStatus is returned by lock checks.
type LockStatus struct {
	Locked   bool
	UnlockAt *time.Time
}

// LockoutEvent is the append-only audit record of a lockout.
type LockoutEvent struct {
	ID             string
	UserID         string
	OccurredAt     time.Time
	FailedAttempts int
	UnlockAt       time.Time
}
