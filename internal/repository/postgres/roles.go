package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

// RoleRepository reads the role and permission catalog.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder}
}

// List retrieves all roles, system roles first.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "is_system_role").
		From("payroll.roles").
		OrderBy("is_system_role DESC", "name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name", "description", "is_system_role").
		From("payroll.roles").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by id sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return role, nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)

	if err := row.Scan(&role.ID, &role.Name, &description, &role.IsSystemRole); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	role.Description = nullableString(description)
	return &role, nil
}

// ListRolePermissions returns the permissions granted by a role.
func (r *RoleRepository) ListRolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select("p.id", "p.name", "p.description").
		From("payroll.permissions AS p").
		Join("payroll.role_permissions AS rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleID}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		var (
			permission  domain.Permission
			description sql.NullString
		)
		if err := rows.Scan(&permission.ID, &permission.Name, &description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permission.Description = nullableString(description)
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}

	return permissions, nil
}

// Delete removes a non-system role (cascades to user_roles and role_permissions via FK).
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("payroll.roles").
		Where(squirrel.Eq{"id": id, "is_system_role": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
