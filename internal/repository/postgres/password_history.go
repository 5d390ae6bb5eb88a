package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

// PasswordHistoryRepository stores prior password hashes.
type PasswordHistoryRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPasswordHistoryRepository constructs a PostgreSQL-backed history repository.
func NewPasswordHistoryRepository(exec pgExecutor) *PasswordHistoryRepository {
	return &PasswordHistoryRepository{exec: exec, builder: newBuilder()}
}

// ListPasswordHistory returns up to limit entries, newest first. limit <= 0 returns all.
func (r *PasswordHistoryRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	query := r.builder.Select("id", "user_id", "password_hash", "created_at").
		From("payroll.password_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.PasswordHistoryEntry, 0)
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.PasswordHash, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return entries, nil
}

// InsertPasswordHistory appends a history entry.
func (r *PasswordHistoryRepository) InsertPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	stmt, args, err := r.builder.Insert("payroll.password_history").
		Columns("id", "user_id", "password_hash", "created_at").
		Values(entry.ID, entry.UserID, entry.PasswordHash, entry.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}
	return nil
}

// DeletePasswordHistory removes the given entries.
func (r *PasswordHistoryRepository) DeletePasswordHistory(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	stmt, args, err := r.builder.Delete("payroll.password_history").
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete password history: %w", err)
	}
	return nil
}

var _ port.PasswordHistoryRepository = (*PasswordHistoryRepository)(nil)
