package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

var errStoreDown = errors.New("connection refused")

// fakeUserStore is an in-memory users table that also implements the lockout store.
type fakeUserStore struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	lockoutEvents []domain.LockoutEvent

	getErr      error
	registerErr error
	resetErr    error
	clearErr    error
	updateErr   error

	clearCalls  int
	updateCalls int
}

func newFakeUserStore(users ...domain.User) *fakeUserStore {
	store := &fakeUserStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		u := u
		store.users[u.ID] = &u
	}
	return store
}

func (s *fakeUserStore) snapshot(id string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	at := changedAt
	u.PasswordChangedAt = &at
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *fakeUserStore) RegisterFailure(_ context.Context, userID string, policy domain.LockoutPolicy, now time.Time) (domain.FailureOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return domain.FailureOutcome{}, s.registerErr
	}
	u, ok := s.users[userID]
	if !ok {
		return domain.FailureOutcome{}, repository.ErrNotFound
	}

	outcome := domain.ApplyFailure(domain.LockSnapshot{FailedAttempts: u.FailedAttempts, LockedUntil: u.LockedUntil}, policy, now)
	if !outcome.Changed() {
		return outcome, nil
	}
	u.FailedAttempts = outcome.FailedAttempts
	u.LockedUntil = outcome.LockedUntil
	if outcome.Crossed {
		s.lockoutEvents = append(s.lockoutEvents, domain.LockoutEvent{
			ID:             "evt",
			UserID:         userID,
			OccurredAt:     now,
			FailedAttempts: outcome.FailedAttempts,
			UnlockAt:       *outcome.LockedUntil,
		})
	}
	return outcome, nil
}

func (s *fakeUserStore) ResetFailures(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetErr != nil {
		return s.resetErr
	}
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *fakeUserStore) ClearExpiredLock(_ context.Context, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	if s.clearErr != nil {
		return false, s.clearErr
	}
	u, ok := s.users[userID]
	if !ok || u.LockedUntil == nil || u.LockedUntil.After(now) {
		return false, nil
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return true, nil
}

func (s *fakeUserStore) ListLockoutEvents(_ context.Context, userID string, limit int) ([]domain.LockoutEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LockoutEvent, 0)
	for i := len(s.lockoutEvents) - 1; i >= 0; i-- {
		if s.lockoutEvents[i].UserID == userID {
			out = append(out, s.lockoutEvents[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeUserStore) eventCount(userID string) int {
	events, _ := s.ListLockoutEvents(context.Background(), userID, 0)
	return len(events)
}

type fakeRoleRepo struct {
	mu          sync.Mutex
	roles       map[string]domain.Role
	permissions map[string][]string
	err         error
	permCalls   int
	deleted     []string
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles:       make(map[string]domain.Role),
		permissions: make(map[string][]string),
	}
}

func (r *fakeRoleRepo) addRole(role domain.Role, perms ...string) {
	r.roles[role.ID] = role
	r.permissions[role.ID] = perms
}

func (r *fakeRoleRepo) List(context.Context) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	role, ok := r.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r *fakeRoleRepo) ListRolePermissions(_ context.Context, roleID string) ([]domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permCalls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]domain.Permission, 0)
	for _, name := range r.permissions[roleID] {
		out = append(out, domain.Permission{ID: "perm-" + name, Name: name})
	}
	return out, nil
}

func (r *fakeRoleRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	role, ok := r.roles[id]
	if !ok || role.IsSystemRole {
		return repository.ErrNotFound
	}
	delete(r.roles, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeUserRoleRepo struct {
	mu         sync.Mutex
	rows       []domain.UserRole
	err        error
	replaceErr error
	listCalls  int
	// afterList runs once rows are read, outside the lock.
	afterList func(userID string)
}

func (r *fakeUserRoleRepo) assign(userID string, roleIDs ...string) {
	for _, roleID := range roleIDs {
		r.rows = append(r.rows, domain.UserRole{ID: userID + "-" + roleID, UserID: userID, RoleID: roleID, IsActive: true})
	}
}

func (r *fakeUserRoleRepo) ListActiveUserRoles(_ context.Context, userID string) ([]domain.UserRole, error) {
	r.mu.Lock()
	r.listCalls++
	if r.err != nil {
		r.mu.Unlock()
		return nil, r.err
	}
	out := make([]domain.UserRole, 0)
	for _, row := range r.rows {
		if row.UserID == userID && row.IsActive {
			out = append(out, row)
		}
	}
	hook := r.afterList
	r.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
	return out, nil
}

func (r *fakeUserRoleRepo) InsertUserRole(_ context.Context, assignment domain.UserRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, assignment)
	return nil
}

func (r *fakeUserRoleRepo) DeactivateUserRole(_ context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	changed := false
	for i := range r.rows {
		if r.rows[i].UserID == userID && r.rows[i].RoleID == roleID && r.rows[i].IsActive {
			r.rows[i].IsActive = false
			changed = true
		}
	}
	if !changed {
		return repository.ErrNotFound
	}
	return nil
}

func (r *fakeUserRoleRepo) DeactivateUserRoles(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for i := range r.rows {
		if r.rows[i].UserID == userID {
			r.rows[i].IsActive = false
		}
	}
	return nil
}

func (r *fakeUserRoleRepo) ReplaceActiveRoles(_ context.Context, userID string, roleIDs []string, assignedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	for i := range r.rows {
		if r.rows[i].UserID == userID {
			r.rows[i].IsActive = false
		}
	}
	for _, roleID := range roleIDs {
		by := assignedBy
		r.rows = append(r.rows, domain.UserRole{ID: userID + "-" + roleID, UserID: userID, RoleID: roleID, IsActive: true, AssignedBy: &by, AssignedAt: at})
	}
	return nil
}

type fakeHistory struct {
	mu        sync.Mutex
	entries   []domain.PasswordHistoryEntry
	listErr   error
	insertErr error
	deleteErr error
	deleted   []string
}

func (h *fakeHistory) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	out := make([]domain.PasswordHistoryEntry, 0)
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].UserID != userID {
			continue
		}
		out = append(out, h.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (h *fakeHistory) InsertPasswordHistory(_ context.Context, entry domain.PasswordHistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.insertErr != nil {
		return h.insertErr
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *fakeHistory) DeletePasswordHistory(_ context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deleteErr != nil {
		return h.deleteErr
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := h.entries[:0]
	for _, entry := range h.entries {
		if _, ok := drop[entry.ID]; ok {
			continue
		}
		kept = append(kept, entry)
	}
	h.entries = kept
	h.deleted = append(h.deleted, ids...)
	return nil
}

// fakeHasher stores passwords as "hash:<password>".
type fakeHasher struct {
	mu          sync.Mutex
	verifyCalls int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	return "hash:" + password, nil
}

func (h *fakeHasher) Verify(password, encoded string) (bool, error) {
	h.mu.Lock()
	h.verifyCalls++
	h.mu.Unlock()
	if !strings.HasPrefix(encoded, "hash:") {
		return false, errors.New("unknown hash format")
	}
	return encoded == "hash:"+password, nil
}

func (h *fakeHasher) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifyCalls
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func (s *recordingSink) Record(_ context.Context, event domain.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(eventType string) []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SecurityEvent, 0)
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type staticSettings struct {
	settings domain.SecuritySettings
}

func (s staticSettings) Current(context.Context) domain.SecuritySettings {
	return s.settings
}

func defaultSettings() staticSettings {
	return staticSettings{settings: domain.DefaultSecuritySettings()}
}

type recordingPublisher struct {
	mu       sync.Mutex
	roles    []domain.RolesChangedEvent
	password []domain.PasswordChangedEvent
	security []domain.SecurityEvent
	err      error
}

func (p *recordingPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.security = append(p.security, event)
	return p.err
}

func (p *recordingPublisher) PublishRolesChanged(_ context.Context, event domain.RolesChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roles = append(p.roles, event)
	return p.err
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.password = append(p.password, event)
	return p.err
}

// memoryRateStore keeps attempts in a slice per key.
type memoryRateStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	err      error
}

func newMemoryRateStore() *memoryRateStore {
	return &memoryRateStore{attempts: make(map[string][]time.Time)}
}

func (s *memoryRateStore) Admit(_ context.Context, key string, limit int, window time.Duration, reference time.Time) (port.WindowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return port.WindowState{}, s.err
	}

	threshold := reference.Add(-window)
	kept := make([]time.Time, 0, len(s.attempts[key])+1)
	for _, at := range s.attempts[key] {
		if at.After(threshold) {
			kept = append(kept, at)
		}
	}

	state := port.WindowState{}
	if len(kept) < limit {
		kept = append(kept, reference)
		state.Admitted = true
	}
	s.attempts[key] = kept
	state.Count = len(kept)
	if len(kept) > 0 {
		state.Oldest, state.HasOldest = kept[0], true
	}
	return state, nil
}

// mapCache is a minimal PermissionCache without expiry. Any invalidation
// advances the single generation it tracks.
type mapCache struct {
	mu         sync.Mutex
	entries    map[string]domain.PermissionSet
	generation uint64
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]domain.PermissionSet)}
}

func (c *mapCache) Get(userID string) (domain.PermissionSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.entries[userID]
	return set, ok
}

func (c *mapCache) Generation(string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *mapCache) SetIfGeneration(userID string, set domain.PermissionSet, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.entries[userID] = set
	return true
}

func (c *mapCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	delete(c.entries, userID)
}

func (c *mapCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[string]domain.PermissionSet)
}

type countingMetrics struct {
	port.NoopSecurityMetrics
	mu             sync.Mutex
	failed         int
	lockouts       int
	resolverErrors int
	rateLimited    int
	hits, misses   int
}

func (m *countingMetrics) IncFailedAttempt() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *countingMetrics) IncLockout() {
	m.mu.Lock()
	m.lockouts++
	m.mu.Unlock()
}

func (m *countingMetrics) IncResolverError() {
	m.mu.Lock()
	m.resolverErrors++
	m.mu.Unlock()
}

func (m *countingMetrics) IncRateLimited(string) {
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
		return
	}
	m.misses++
}

func timePtr(t time.Time) *time.Time {
	return &t
}
