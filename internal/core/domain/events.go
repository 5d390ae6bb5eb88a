package domain

import "time"

// Severity tiers attached to every security event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Security event types emitted at decision points.
const (
	EventLoginSuccess          = "LOGIN_SUCCESS"
	EventLoginFailed           = "LOGIN_FAILED"
	EventLoginBlockedLocked    = "LOGIN_BLOCKED_LOCKED"
	EventLoginRateLimited      = "RATE_LIMIT_EXCEEDED"
	EventAccountLocked         = "ACCOUNT_LOCKED"
	EventAccountUnlocked       = "ACCOUNT_UNLOCKED"
	EventUnauthorizedUnlock    = "UNAUTHORIZED_ACCOUNT_UNLOCK_ATTEMPT"
	EventAccountUnlockFailed   = "ACCOUNT_UNLOCK_FAILED"
	EventPermissionGranted     = "PERMISSION_GRANTED"
	EventPermissionDenied      = "PERMISSION_DENIED"
	EventAuthenticationMissing = "AUTHENTICATION_REQUIRED"
	EventPermissionCheckError  = "PERMISSION_CHECK_ERROR"
	EventLockoutCheckError     = "LOCKOUT_CHECK_ERROR"
	EventPasswordChanged       = "PASSWORD_CHANGED"
	EventPasswordChangeDenied  = "PASSWORD_CHANGE_REJECTED"
	EventRolesChanged          = "ROLES_CHANGED"
)

// SecurityEvent is the record handed to the security event sink.
type SecurityEvent struct {
	ID         string
	Type       string
	UserID     *string
	UserEmail  string
	IPAddress  string
	UserAgent  string
	Resource   string
	Severity   Severity
	Details    map[string]any
	OccurredAt time.Time
}

// RolesChangedEvent is published whenever a user's active role set changes so
// that every process holding a permission cache can drop the user's entry.
type RolesChangedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	RoleIDs   []string  `json:"role_ids"`
	ChangedAt time.Time `json:"changed_at"`
}

// Role change actions.
const (
	RoleActionAssigned = "assigned"
	RoleActionRemoved  = "removed"
	RoleActionReplaced = "replaced"
)

// PasswordChangedEvent is published after a committed credential update.
type PasswordChangedEvent struct {
	EventID   string
	UserID    string
	ChangedBy string
	ChangedAt time.Time
}
