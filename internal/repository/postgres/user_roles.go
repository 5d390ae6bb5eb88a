package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

// UserRoleRepository manages user_roles rows. Deactivation never deletes.
type UserRoleRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	newID   func() string
}

// NewUserRoleRepository constructs a PostgreSQL-backed assignment repository.
func NewUserRoleRepository(pool pgPool) *UserRoleRepository {
	return &UserRoleRepository{
		pool:    pool,
		exec:    pool,
		builder: newBuilder(),
		newID:   uuid.NewString,
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRoleRepository) WithTx(tx pgx.Tx) *UserRoleRepository {
	if tx == nil {
		return r
	}
	return &UserRoleRepository{pool: r.pool, exec: tx, builder: r.builder, newID: r.newID}
}

// ListActiveUserRoles returns the active assignments for a user.
func (r *UserRoleRepository) ListActiveUserRoles(ctx context.Context, userID string) ([]domain.UserRole, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "role_id", "is_active", "assigned_by", "assigned_at").
		From("payroll.user_roles").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		OrderBy("assigned_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	assignments := make([]domain.UserRole, 0)
	for rows.Next() {
		var (
			assignment domain.UserRole
			assignedBy sql.NullString
		)
		if err := rows.Scan(&assignment.ID, &assignment.UserID, &assignment.RoleID, &assignment.IsActive, &assignedBy, &assignment.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		assignment.AssignedBy = nullableString(assignedBy)
		assignments = append(assignments, assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return assignments, nil
}

// InsertUserRole adds an active assignment.
func (r *UserRoleRepository) InsertUserRole(ctx context.Context, assignment domain.UserRole) error {
	id := assignment.ID
	if id == "" {
		id = r.newID()
	}
	assignedAt := assignment.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	stmt, args, err := r.builder.Insert("payroll.user_roles").
		Columns("id", "user_id", "role_id", "is_active", "assigned_by", "assigned_at").
		Values(id, assignment.UserID, assignment.RoleID, true, optionalString(assignment.AssignedBy), assignedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user role: %w", err)
	}
	return nil
}

// DeactivateUserRole deactivates one role for a user. It returns
// repository.ErrNotFound when the user holds no active assignment of roleID.
func (r *UserRoleRepository) DeactivateUserRole(ctx context.Context, userID, roleID string) error {
	stmt, args, err := r.builder.Update("payroll.user_roles").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "role_id": roleID, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate user role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeactivateUserRoles deactivates every active role of a user.
func (r *UserRoleRepository) DeactivateUserRoles(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Update("payroll.user_roles").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate user roles sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("deactivate user roles: %w", err)
	}
	return nil
}

// ReplaceActiveRoles swaps the active set in one transaction; on error the
// previous active rows survive the rollback.
func (r *UserRoleRepository) ReplaceActiveRoles(ctx context.Context, userID string, roleIDs []string, assignedBy string, at time.Time) error {
	var actor *string
	if assignedBy != "" {
		actor = &assignedBy
	}

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		scoped := r.WithTx(tx)
		if err := scoped.DeactivateUserRoles(ctx, userID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if err := scoped.InsertUserRole(ctx, domain.UserRole{
				UserID:     userID,
				RoleID:     roleID,
				AssignedBy: actor,
				AssignedAt: at,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ port.UserRoleRepository = (*UserRoleRepository)(nil)
