package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/payroll-access/internal/core/domain"
)

type resolverFixture struct {
	roles     *fakeRoleRepo
	userRoles *fakeUserRoleRepo
	cache     *mapCache
	sink      *recordingSink
	metrics   *countingMetrics
	resolver  *PermissionResolver
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	f := &resolverFixture{
		roles:     newFakeRoleRepo(),
		userRoles: &fakeUserRoleRepo{},
		cache:     newMapCache(),
		sink:      &recordingSink{},
		metrics:   &countingMetrics{},
	}
	f.roles.addRole(domain.Role{ID: "role-employee", Name: domain.RoleEmployee, IsSystemRole: true}, domain.PermDashboardAccess, domain.PermTimesheetRead)
	f.roles.addRole(domain.Role{ID: "role-hr", Name: domain.RoleHRManager, IsSystemRole: true}, domain.PermUsersRead, domain.PermPayrollRead, domain.PermTimesheetRead)
	f.roles.addRole(domain.Role{ID: "role-admin", Name: domain.RoleAdmin, IsSystemRole: true}, domain.PermUsersUnlock, domain.PermRolesAssign, domain.PermRolesRead, domain.PermRolesDelete)

	f.resolver = NewPermissionResolver(f.userRoles, f.roles, f.cache, f.sink, f.metrics, zaptest.NewLogger(t))
	return f
}

func TestGetUserPermissionsUnionsActiveRoles(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-employee", "role-hr")
	f.userRoles.rows = append(f.userRoles.rows, domain.UserRole{UserID: "user-1", RoleID: "role-admin", IsActive: false})

	set, err := f.resolver.GetUserPermissions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUserPermissions returned error: %v", err)
	}

	want := []string{domain.PermDashboardAccess, domain.PermPayrollRead, domain.PermTimesheetRead, domain.PermUsersRead}
	got := set.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if set.Has(domain.PermUsersUnlock) {
		t.Fatalf("inactive role must not contribute permissions")
	}
}

func TestUserWithoutRolesHasNoPermissions(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	set, err := f.resolver.GetUserPermissions(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUserPermissions returned error: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %v", set.Names())
	}
	for _, perm := range []string{domain.PermUsersRead, domain.PermPayrollRead, domain.PermRolesAssign} {
		if f.resolver.HasPermission(ctx, "nobody", perm) {
			t.Fatalf("expected %s to be denied", perm)
		}
	}
}

func TestResolverCachesResolvedSets(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-employee")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !f.resolver.HasPermission(ctx, "user-1", domain.PermTimesheetRead) {
			t.Fatalf("expected permission on call %d", i)
		}
	}
	if f.userRoles.listCalls != 1 {
		t.Fatalf("expected a single store lookup, got %d", f.userRoles.listCalls)
	}
	if f.metrics.hits != 2 || f.metrics.misses != 1 {
		t.Fatalf("expected 2 hits / 1 miss, got %d / %d", f.metrics.hits, f.metrics.misses)
	}
}

func TestResolverFailsClosedOnStoreError(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-admin")
	f.userRoles.err = errStoreDown
	ctx := context.Background()

	set, err := f.resolver.GetUserPermissions(ctx, "user-1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set on failure, got %v", set.Names())
	}
	if f.resolver.HasPermission(ctx, "user-1", domain.PermUsersUnlock) {
		t.Fatalf("HasPermission must deny on store failure")
	}
	if f.resolver.HasAnyPermission(ctx, "user-1", domain.PermUsersUnlock, domain.PermRolesAssign) {
		t.Fatalf("HasAnyPermission must deny on store failure")
	}
	if f.resolver.HasAllPermissions(ctx, "user-1") {
		t.Fatalf("HasAllPermissions must deny on store failure")
	}

	critical := f.sink.ofType(domain.EventPermissionCheckError)
	if len(critical) == 0 || critical[0].Severity != domain.SeverityCritical {
		t.Fatalf("expected CRITICAL permission check event, got %+v", critical)
	}
	if f.metrics.resolverErrors == 0 {
		t.Fatalf("expected resolver error metric")
	}

	// Failures are not cached: recovery is visible on the next call.
	f.userRoles.err = nil
	if !f.resolver.HasPermission(ctx, "user-1", domain.PermUsersUnlock) {
		t.Fatalf("expected permission after store recovery")
	}
}

func TestRolePermissionFailureFailsClosed(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-hr")
	f.roles.err = errStoreDown

	if f.resolver.HasPermission(context.Background(), "user-1", domain.PermPayrollRead) {
		t.Fatalf("expected deny when role permissions cannot be loaded")
	}
}

func TestHasAnyAndHasAllPermissions(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-hr")
	ctx := context.Background()

	if f.resolver.HasAnyPermission(ctx, "user-1") {
		t.Fatalf("empty requirement must not grant access")
	}
	if !f.resolver.HasAnyPermission(ctx, "user-1", domain.PermRolesAssign, domain.PermPayrollRead) {
		t.Fatalf("expected any-match to succeed")
	}
	if f.resolver.HasAnyPermission(ctx, "user-1", domain.PermRolesAssign, domain.PermUsersUnlock) {
		t.Fatalf("expected any-match to fail")
	}
	if !f.resolver.HasAllPermissions(ctx, "user-1", domain.PermUsersRead, domain.PermPayrollRead) {
		t.Fatalf("expected all-match to succeed")
	}
	if f.resolver.HasAllPermissions(ctx, "user-1", domain.PermUsersRead, domain.PermRolesAssign) {
		t.Fatalf("expected all-match to fail")
	}
}

func TestInvalidateForcesReResolution(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-employee")
	ctx := context.Background()

	if f.resolver.HasPermission(ctx, "user-1", domain.PermPayrollRead) {
		t.Fatalf("unexpected permission before reassignment")
	}

	f.userRoles.assign("user-1", "role-hr")
	f.resolver.Invalidate("user-1")

	if !f.resolver.HasPermission(ctx, "user-1", domain.PermPayrollRead) {
		t.Fatalf("expected new permission after invalidation")
	}

	f.userRoles.rows = nil
	f.resolver.InvalidateAll()
	if f.resolver.HasPermission(ctx, "user-1", domain.PermPayrollRead) {
		t.Fatalf("expected permission to disappear after InvalidateAll")
	}
}

func TestResolverConcurrentReads(t *testing.T) {
	f := newResolverFixture(t)
	f.userRoles.assign("user-1", "role-hr")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				f.resolver.Invalidate("user-1")
			}
			if !f.resolver.HasPermission(ctx, "user-1", domain.PermUsersRead) {
				t.Errorf("expected permission in goroutine %d", i)
			}
		}(i)
	}
	wg.Wait()
}
