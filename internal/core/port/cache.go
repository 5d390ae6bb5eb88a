package port

import "github.com/arklim/payroll-access/internal/core/domain"

// PermissionCache holds resolved permission sets keyed by user id. Entries are
// replaced whole; callers never mutate a set obtained from Get.
//
// Every invalidation advances the generation of the affected keys. A resolver
// reads Generation before it loads from the store and hands the value back to
// SetIfGeneration, which refuses the write when an invalidation happened in
// between.
type PermissionCache interface {
	Get(userID string) (domain.PermissionSet, bool)
	Generation(userID string) uint64
	SetIfGeneration(userID string, permissions domain.PermissionSet, generation uint64) bool
	Invalidate(userID string)
	InvalidateAll()
}
