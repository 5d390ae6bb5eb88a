package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

var tracer = otel.Tracer("payroll-access/usecase")

// PermissionResolver computes a user's effective permissions from their
// active roles. Results are cached per user; failures never are.
type PermissionResolver struct {
	userRoles port.UserRoleRepository
	roles     port.RoleRepository
	cache     port.PermissionCache
	events    port.SecurityEventSink
	metrics   port.SecurityMetrics
	logger    *zap.Logger
}

// NewPermissionResolver wires the resolver. cache, events and metrics are optional.
func NewPermissionResolver(
	userRoles port.UserRoleRepository,
	roles port.RoleRepository,
	cache port.PermissionCache,
	events port.SecurityEventSink,
	metrics port.SecurityMetrics,
	logger *zap.Logger,
) *PermissionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = port.NoopSecurityMetrics{}
	}
	return &PermissionResolver{
		userRoles: userRoles,
		roles:     roles,
		cache:     cache,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// GetUserPermissions returns the union of the permissions of every active role
// held by userID. On store failure it returns an empty set together with an
// error wrapping domain.ErrStoreUnavailable; the empty set must be treated as
// no access.
func (r *PermissionResolver) GetUserPermissions(ctx context.Context, userID string) (domain.PermissionSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PermissionSet{}, nil
	}

	var generation uint64
	if r.cache != nil {
		if set, ok := r.cache.Get(userID); ok {
			r.metrics.ObserveCacheLookup(true)
			return set, nil
		}
		r.metrics.ObserveCacheLookup(false)
		generation = r.cache.Generation(userID)
	}

	ctx, span := tracer.Start(ctx, "PermissionResolver.GetUserPermissions")
	defer span.End()

	set, err := r.resolve(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "permission resolution failed")
		r.metrics.IncResolverError()
		r.logger.Error("permission resolution failed", zap.String("user_id", userID), zap.Error(err))
		r.emit(ctx, domain.SecurityEvent{
			Type:     domain.EventPermissionCheckError,
			UserID:   &userID,
			Severity: domain.SeverityCritical,
			Details:  map[string]any{"error": err.Error()},
		})
		return domain.PermissionSet{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.Int("permissions.count", len(set)))

	// A role change that landed while resolving wins over this result.
	if r.cache != nil && !r.cache.SetIfGeneration(userID, set, generation) {
		r.logger.Debug("resolved permissions superseded by invalidation", zap.String("user_id", userID))
	}
	return set, nil
}

func (r *PermissionResolver) resolve(ctx context.Context, userID string) (domain.PermissionSet, error) {
	assignments, err := r.userRoles.ListActiveUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active roles: %w", err)
	}

	set := domain.NewPermissionSet()
	seen := make(map[string]struct{}, len(assignments))
	for _, assignment := range assignments {
		if !assignment.IsActive {
			continue
		}
		if _, dup := seen[assignment.RoleID]; dup {
			continue
		}
		seen[assignment.RoleID] = struct{}{}

		perms, err := r.roles.ListRolePermissions(ctx, assignment.RoleID)
		if err != nil {
			return nil, fmt.Errorf("list permissions for role %s: %w", assignment.RoleID, err)
		}
		for _, perm := range perms {
			if perm.Name != "" {
				set[perm.Name] = struct{}{}
			}
		}
	}
	return set, nil
}

// HasPermission reports whether userID holds permission. Any failure denies.
func (r *PermissionResolver) HasPermission(ctx context.Context, userID, permission string) bool {
	set, err := r.GetUserPermissions(ctx, userID)
	if err != nil {
		return false
	}
	return set.Has(permission)
}

// HasAnyPermission reports whether userID holds at least one of permissions.
// An empty requirement is never satisfied.
func (r *PermissionResolver) HasAnyPermission(ctx context.Context, userID string, permissions ...string) bool {
	if len(permissions) == 0 {
		return false
	}
	set, err := r.GetUserPermissions(ctx, userID)
	if err != nil {
		return false
	}
	return set.HasAny(permissions...)
}

// HasAllPermissions reports whether userID holds every one of permissions.
func (r *PermissionResolver) HasAllPermissions(ctx context.Context, userID string, permissions ...string) bool {
	set, err := r.GetUserPermissions(ctx, userID)
	if err != nil {
		return false
	}
	return set.HasAll(permissions...)
}

// Invalidate drops the cached set for userID.
func (r *PermissionResolver) Invalidate(userID string) {
	if r.cache != nil {
		r.cache.Invalidate(userID)
	}
}

// InvalidateAll drops every cached set.
func (r *PermissionResolver) InvalidateAll() {
	if r.cache != nil {
		r.cache.InvalidateAll()
	}
}

func (r *PermissionResolver) emit(ctx context.Context, event domain.SecurityEvent) {
	if r.events != nil {
		r.events.Record(ctx, event)
	}
}
