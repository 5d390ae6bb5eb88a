package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

// SettingsRepository reads the administrator-maintained security_settings row.
type SettingsRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSettingsRepository constructs a PostgreSQL-backed settings repository.
func NewSettingsRepository(exec pgExecutor) *SettingsRepository {
	return &SettingsRepository{exec: exec, builder: newBuilder()}
}

// GetSecuritySettings overlays the newest stored row on defaults. Fields the
// table does not carry keep their default values.
func (r *SettingsRepository) GetSecuritySettings(ctx context.Context, defaults domain.SecuritySettings) (domain.SecuritySettings, error) {
	stmt, args, err := r.builder.Select(
		"max_failed_attempts",
		"lockout_duration_minutes",
		"auto_unlock",
		"password_min_length",
		"require_uppercase",
		"require_lowercase",
		"require_numbers",
		"require_special_chars",
		"enable_complexity",
		"password_history_limit",
		"min_password_age_hours",
	).
		From("payroll.security_settings").
		OrderBy("updated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return defaults, fmt.Errorf("build select security settings sql: %w", err)
	}

	settings := defaults
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&settings.MaxFailedAttempts,
		&settings.LockoutDurationMinutes,
		&settings.AutoUnlock,
		&settings.PasswordMinLength,
		&settings.RequireUppercase,
		&settings.RequireLowercase,
		&settings.RequireNumbers,
		&settings.RequireSpecialChars,
		&settings.EnableComplexity,
		&settings.PasswordHistoryLimit,
		&settings.MinPasswordAgeHours,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return defaults, repository.ErrNotFound
		}
		return defaults, fmt.Errorf("scan security settings: %w", err)
	}

	return settings.Normalize(), nil
}

var _ port.SettingsRepository = (*SettingsRepository)(nil)
