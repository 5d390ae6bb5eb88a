package port

import (
	"context"
	"time"

	"github.com/arklim/payroll-access/internal/core/domain"
)

// UserRepository exposes the identity store operations this service consumes.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdatePassword writes the new hash, stamps password_changed_at and
	// clears the lockout fields in one statement.
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
}

// LockoutStore persists lockout transitions. Implementations must serialize
// RegisterFailure per user and append the LockoutEvent in the same unit of
// work that sets locked_until.
type LockoutStore interface {
	RegisterFailure(ctx context.Context, userID string, policy domain.LockoutPolicy, now time.Time) (domain.FailureOutcome, error)
	ResetFailures(ctx context.Context, userID string) error
	// ClearExpiredLock clears both lockout fields only if locked_until <= now.
	ClearExpiredLock(ctx context.Context, userID string, now time.Time) (bool, error)
	ListLockoutEvents(ctx context.Context, userID string, limit int) ([]domain.LockoutEvent, error)
}

// PasswordHistoryRepository stores prior credential hashes.
type PasswordHistoryRepository interface {
	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error)
	InsertPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
	DeletePasswordHistory(ctx context.Context, ids []string) error
}
