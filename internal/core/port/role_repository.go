package port

import (
	"context"
	"time"

	"github.com/arklim/payroll-access/internal/core/domain"
)

// RoleRepository reads the role/permission catalog.
type RoleRepository interface {
	List(ctx context.Context) ([]domain.Role, error)
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	ListRolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error)
	Delete(ctx context.Context, id string) error
}

// UserRoleRepository manages user to role assignments.
type UserRoleRepository interface {
	ListActiveUserRoles(ctx context.Context, userID string) ([]domain.UserRole, error)
	InsertUserRole(ctx context.Context, assignment domain.UserRole) error
	DeactivateUserRole(ctx context.Context, userID, roleID string) error
	DeactivateUserRoles(ctx context.Context, userID string) error
	// ReplaceActiveRoles deactivates every active row and inserts the new set
	// atomically. On failure the previous active set is left intact.
	ReplaceActiveRoles(ctx context.Context, userID string, roleIDs []string, assignedBy string, at time.Time) error
}
