package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

var userColumns = []string{
	"id",
	"email",
	"password_hash",
	"failed_attempts",
	"locked_until",
	"password_changed_at",
	"is_active",
	"created_at",
}

// UserRepository implements port.UserRepository and port.LockoutStore using PostgreSQL.
type UserRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	newID   func() string
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(pool pgPool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: newBuilder(),
		newID:   uuid.NewString,
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
		newID:   r.newID,
	}
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("payroll.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a user by login identifier, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("payroll.users").
		Where(squirrel.Expr("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user              domain.User
		lockedUntil       sql.NullTime
		passwordChangedAt sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FailedAttempts,
		&lockedUntil,
		&passwordChangedAt,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.LockedUntil = nullableTime(lockedUntil)
	user.PasswordChangedAt = nullableTime(passwordChangedAt)
	return &user, nil
}

// UpdatePassword stores the new hash, stamps password_changed_at and clears lockout fields.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("payroll.users").
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt.UTC()).
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RegisterFailure counts one failed attempt under a row lock so concurrent
// failures serialize, and appends the lockout event in the same transaction.
func (r *UserRepository) RegisterFailure(ctx context.Context, userID string, policy domain.LockoutPolicy, now time.Time) (domain.FailureOutcome, error) {
	var outcome domain.FailureOutcome

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		stmt, args, err := r.builder.Select("failed_attempts", "locked_until").
			From("payroll.users").
			Where(squirrel.Eq{"id": userID}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return fmt.Errorf("build lock user sql: %w", err)
		}

		var (
			snapshot    domain.LockSnapshot
			lockedUntil sql.NullTime
		)
		if err := tx.QueryRow(ctx, stmt, args...).Scan(&snapshot.FailedAttempts, &lockedUntil); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("lock user row: %w", err)
		}
		snapshot.LockedUntil = nullableTime(lockedUntil)

		outcome = domain.ApplyFailure(snapshot, policy, now)
		if !outcome.Changed() {
			return nil
		}

		stmt, args, err = r.builder.Update("payroll.users").
			Set("failed_attempts", outcome.FailedAttempts).
			Set("locked_until", optionalTime(outcome.LockedUntil)).
			Where(squirrel.Eq{"id": userID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update failures sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("update failed attempts: %w", err)
		}

		if !outcome.Crossed {
			return nil
		}

		stmt, args, err = r.builder.Insert("payroll.lockout_events").
			Columns("id", "user_id", "occurred_at", "failed_attempts", "unlock_at").
			Values(r.newID(), userID, now.UTC(), outcome.FailedAttempts, outcome.LockedUntil.UTC()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert lockout event sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert lockout event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.FailureOutcome{}, err
	}

	return outcome, nil
}

// ResetFailures clears the failure counter and any lock.
func (r *UserRepository) ResetFailures(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Update("payroll.users").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failures sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ClearExpiredLock clears the lock only when it has already elapsed, so a
// racing RegisterFailure that set a fresh lock is left untouched.
func (r *UserRepository) ClearExpiredLock(ctx context.Context, userID string, now time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("payroll.users").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": userID}).
		Where(squirrel.LtOrEq{"locked_until": now.UTC()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build clear expired lock sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("clear expired lock: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// ListLockoutEvents returns the most recent lockout events for a user.
func (r *UserRepository) ListLockoutEvents(ctx context.Context, userID string, limit int) ([]domain.LockoutEvent, error) {
	query := r.builder.Select("id", "user_id", "occurred_at", "failed_attempts", "unlock_at").
		From("payroll.lockout_events").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list lockout events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query lockout events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.LockoutEvent, 0)
	for rows.Next() {
		var event domain.LockoutEvent
		if err := rows.Scan(&event.ID, &event.UserID, &event.OccurredAt, &event.FailedAttempts, &event.UnlockAt); err != nil {
			return nil, fmt.Errorf("scan lockout event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lockout events: %w", err)
	}

	return events, nil
}

var (
	_ port.UserRepository = (*UserRepository)(nil)
	_ port.LockoutStore   = (*UserRepository)(nil)
)
