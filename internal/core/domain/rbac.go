package domain

import (
	"regexp"
	"sort"
	"time"
)

// Role defines a set of permissions. System roles cannot be deleted.
type Role struct {
	ID           string
	Name         string
	Description  *string
	IsSystemRole bool
}

// Permission defines a named capability in resource.action form.
type Permission struct {
	ID          string
	Name        string
	Description *string
}

// RolePermission links a role with a permission.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// UserRole assigns a role to a user. Inactive rows are kept for audit.
type UserRole struct {
	ID         string
	UserID     string
	RoleID     string
	IsActive   bool
	AssignedBy *string
	AssignedAt time.Time
}

var permissionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// ValidPermissionName reports whether name follows the resource.action convention.
func ValidPermissionName(name string) bool {
	return permissionNamePattern.MatchString(name)
}

// PermissionSet is an immutable-by-convention set of permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet collapses the supplied names into a set.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Has reports membership of a single permission.
func (s PermissionSet) Has(permission string) bool {
	_, ok := s[permission]
	return ok
}

// HasAny is true iff at least one of the permissions is held. An empty
// requirement never grants access.
func (s PermissionSet) HasAny(permissions ...string) bool {
	for _, p := range permissions {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll is true iff every permission is held.
func (s PermissionSet) HasAll(permissions ...string) bool {
	for _, p := range permissions {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Names returns the permissions in lexical order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy that callers may mutate freely.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// PrimaryRole picks the display role: system roles first, then by name.
func PrimaryRole(roles []Role) (Role, bool) {
	if len(roles) == 0 {
		return Role{}, false
	}
	sorted := make([]Role, len(roles))
	copy(sorted, roles)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsSystemRole != sorted[j].IsSystemRole {
			return sorted[i].IsSystemRole
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted[0], true
}
