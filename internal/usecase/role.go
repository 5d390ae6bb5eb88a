package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

// PermissionAuthority answers permission questions and drops cached sets.
type PermissionAuthority interface {
	PermissionChecker
	Invalidate(userID string)
	InvalidateAll()
}

// RoleService manages role assignments. Every mutation drops the affected
// cached permission set before returning and announces the change to peers.
type RoleService struct {
	roles     port.RoleRepository
	userRoles port.UserRoleRepository
	users     port.UserRepository
	authority PermissionAuthority
	publisher port.EventPublisher
	events    port.SecurityEventSink
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewRoleService constructs a RoleService. publisher and events may be nil.
func NewRoleService(
	roles port.RoleRepository,
	userRoles port.UserRoleRepository,
	users port.UserRepository,
	authority PermissionAuthority,
	publisher port.EventPublisher,
	events port.SecurityEventSink,
	logger *zap.Logger,
) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{
		roles:     roles,
		userRoles: userRoles,
		users:     users,
		authority: authority,
		publisher: publisher,
		events:    events,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ListRoles returns the role catalog.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list roles: %v", domain.ErrStoreUnavailable, err)
	}
	return roles, nil
}

// GetUserRoles returns the roles behind the user's active assignments.
func (s *RoleService) GetUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	assignments, err := s.userRoles.ListActiveUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list user roles: %v", domain.ErrStoreUnavailable, err)
	}

	roles := make([]domain.Role, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	for _, assignment := range assignments {
		if _, dup := seen[assignment.RoleID]; dup || !assignment.IsActive {
			continue
		}
		seen[assignment.RoleID] = struct{}{}

		role, err := s.roles.GetByID(ctx, assignment.RoleID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("%w: get role: %v", domain.ErrStoreUnavailable, err)
		}
		roles = append(roles, *role)
	}
	return roles, nil
}

// PrimaryRole returns the role shown for the user: system roles first, then by name.
func (s *RoleService) PrimaryRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	roles, err := s.GetUserRoles(ctx, userID)
	if err != nil {
		return domain.Role{}, false, err
	}
	role, ok := domain.PrimaryRole(roles)
	return role, ok, nil
}

// AssignRole adds roleID to the user's active roles. Assigning an already
// active role is a no-op.
func (s *RoleService) AssignRole(ctx context.Context, actorID, userID, roleID string) error {
	actorID, userID, roleID = strings.TrimSpace(actorID), strings.TrimSpace(userID), strings.TrimSpace(roleID)
	if err := s.authorize(ctx, actorID, domain.PermRolesAssign, userID); err != nil {
		return err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	if err := s.ensureRole(ctx, roleID); err != nil {
		return err
	}

	active, err := s.userRoles.ListActiveUserRoles(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: list user roles: %v", domain.ErrStoreUnavailable, err)
	}
	for _, assignment := range active {
		if assignment.RoleID == roleID {
			return nil
		}
	}

	defer s.authority.Invalidate(userID)

	actor := actorID
	if err := s.userRoles.InsertUserRole(ctx, domain.UserRole{
		ID:         s.newID(),
		UserID:     userID,
		RoleID:     roleID,
		IsActive:   true,
		AssignedBy: &actor,
		AssignedAt: s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("%w: assign role: %v", domain.ErrStoreUnavailable, err)
	}

	s.announce(ctx, actorID, userID, domain.RoleActionAssigned, []string{roleID})
	return nil
}

// RemoveRole deactivates the user's assignment of roleID.
func (s *RoleService) RemoveRole(ctx context.Context, actorID, userID, roleID string) error {
	actorID, userID, roleID = strings.TrimSpace(actorID), strings.TrimSpace(userID), strings.TrimSpace(roleID)
	if err := s.authorize(ctx, actorID, domain.PermRolesAssign, userID); err != nil {
		return err
	}
	if roleID == "" {
		return domain.NewValidationError("role id is required")
	}

	defer s.authority.Invalidate(userID)

	if err := s.userRoles.DeactivateUserRole(ctx, userID, roleID); err != nil {
		if isNotFound(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("%w: remove role: %v", domain.ErrStoreUnavailable, err)
	}

	s.announce(ctx, actorID, userID, domain.RoleActionRemoved, []string{roleID})
	return nil
}

// ReplaceUserRoles swaps the user's active roles for roleIDs in one unit. On
// failure the previous active set remains.
func (s *RoleService) ReplaceUserRoles(ctx context.Context, actorID, userID string, roleIDs []string) error {
	actorID, userID = strings.TrimSpace(actorID), strings.TrimSpace(userID)
	if err := s.authorize(ctx, actorID, domain.PermRolesAssign, userID); err != nil {
		return err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}

	unique := make([]string, 0, len(roleIDs))
	seen := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if err := s.ensureRole(ctx, id); err != nil {
			return err
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	defer s.authority.Invalidate(userID)

	if err := s.userRoles.ReplaceActiveRoles(ctx, userID, unique, actorID, s.now().UTC()); err != nil {
		return fmt.Errorf("%w: replace roles: %v", domain.ErrStoreUnavailable, err)
	}

	s.announce(ctx, actorID, userID, domain.RoleActionReplaced, unique)
	return nil
}

// DeleteRole removes a non-system role. Every cached set is dropped since the
// holders of the role are not tracked here.
func (s *RoleService) DeleteRole(ctx context.Context, actorID, roleID string) error {
	actorID, roleID = strings.TrimSpace(actorID), strings.TrimSpace(roleID)
	if err := s.authorize(ctx, actorID, domain.PermRolesDelete, roleID); err != nil {
		return err
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if isNotFound(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("%w: get role: %v", domain.ErrStoreUnavailable, err)
	}
	if role.IsSystemRole {
		return domain.ErrSystemRole
	}

	if err := s.roles.Delete(ctx, roleID); err != nil {
		if isNotFound(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("%w: delete role: %v", domain.ErrStoreUnavailable, err)
	}

	s.authority.InvalidateAll()
	s.announce(ctx, actorID, "", domain.RoleActionRemoved, []string{roleID})
	return nil
}

func (s *RoleService) authorize(ctx context.Context, actorID, permission, resource string) error {
	if actorID == "" {
		return domain.ErrAuthenticationRequired
	}
	if !s.authority.HasPermission(ctx, actorID, permission) {
		s.emit(ctx, domain.SecurityEvent{
			Type:     domain.EventPermissionDenied,
			UserID:   &actorID,
			Resource: resource,
			Severity: domain.SeverityMedium,
			Details:  map[string]any{"permission": permission},
		})
		return domain.ErrAuthorizationDenied
	}
	return nil
}

func (s *RoleService) ensureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.NewValidationError("user id is required")
	}
	if s.users == nil {
		return nil
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: load user: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RoleService) ensureRole(ctx context.Context, roleID string) error {
	if roleID == "" {
		return domain.NewValidationError("role id is required")
	}
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		if isNotFound(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("%w: get role: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RoleService) announce(ctx context.Context, actorID, userID, action string, roleIDs []string) {
	now := s.now().UTC()

	var subject *string
	if userID != "" {
		subject = &userID
	}
	s.emit(ctx, domain.SecurityEvent{
		Type:     domain.EventRolesChanged,
		UserID:   subject,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"action": action, "role_ids": roleIDs, "actor_id": actorID},
	})

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRolesChanged(ctx, domain.RolesChangedEvent{
		EventID:   s.newID(),
		UserID:    userID,
		ActorID:   actorID,
		Action:    action,
		RoleIDs:   roleIDs,
		ChangedAt: now,
	}); err != nil {
		s.logger.Warn("publish roles changed failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *RoleService) emit(ctx context.Context, event domain.SecurityEvent) {
	if s.events != nil {
		s.events.Record(ctx, event)
	}
}
