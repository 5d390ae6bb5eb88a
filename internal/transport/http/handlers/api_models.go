package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// ValidationErrorResponse lists every reason a request was rejected.
type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Errors  []string `json:"errors"`
	TraceID string   `json:"trace_id,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned for a successful credential check. Session
// issuance is left to the identity provider.
type LoginResponse struct {
	UserID        string `json:"user_id"`
	Authenticated bool   `json:"authenticated"`
}

// PermissionsResponse lists the caller's effective permissions.
type PermissionsResponse struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// PermissionCheckQuery is bound from the query string.
type PermissionCheckQuery struct {
	Permission string `form:"permission" binding:"required,permission"`
}

// PermissionCheckResponse reports a single permission decision.
type PermissionCheckResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// PasswordChangeRequest captures a self-service password change.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// PasswordResetRequest captures an administrative password reset.
type PasswordResetRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// PasswordValidateRequest carries a candidate for a dry-run check.
type PasswordValidateRequest struct {
	Password string `json:"password" binding:"required"`
}

// PasswordCheckResponse lists every policy violation of a candidate.
type PasswordCheckResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// PasswordAgeResponse reports whether the minimum password age has elapsed.
type PasswordAgeResponse struct {
	CanChange      bool `json:"can_change"`
	HoursRemaining int  `json:"hours_remaining"`
}

// RolePayload summarizes a role entity.
type RolePayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	IsSystemRole bool    `json:"is_system_role"`
}

// RoleListResponse wraps multiple roles.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// UserRolesResponse lists a user's active roles.
type UserRolesResponse struct {
	UserID string        `json:"user_id"`
	Roles  []RolePayload `json:"roles"`
}

// RoleReplaceRequest replaces a user's active role set.
type RoleReplaceRequest struct {
	RoleIDs []string `json:"role_ids" binding:"required"`
}

// RoleAssignRequest adds one role to a user.
type RoleAssignRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// LockoutEventPayload describes one threshold crossing.
type LockoutEventPayload struct {
	ID             string    `json:"id"`
	OccurredAt     time.Time `json:"occurred_at"`
	FailedAttempts int       `json:"failed_attempts"`
	UnlockAt       time.Time `json:"unlock_at"`
}

// LockoutStatusResponse describes the lockout state of an account.
type LockoutStatusResponse struct {
	UserID         string                `json:"user_id"`
	State          domain.LockoutState   `json:"state"`
	FailedAttempts int                   `json:"failed_attempts"`
	LockedUntil    *time.Time            `json:"locked_until,omitempty"`
	Events         []LockoutEventPayload `json:"events"`
}

// UnlockResponse confirms an administrative unlock.
type UnlockResponse struct {
	UserID   string `json:"user_id"`
	Unlocked bool   `json:"unlocked"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newRolePayloads(roles []domain.Role) []RolePayload {
	payloads := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payloads = append(payloads, RolePayload{
			ID:           role.ID,
			Name:         role.Name,
			Description:  role.Description,
			IsSystemRole: role.IsSystemRole,
		})
	}
	return payloads
}

func newLockoutStatusResponse(view usecase.LockoutView) LockoutStatusResponse {
	resp := LockoutStatusResponse{
		UserID:         view.UserID,
		State:          view.State,
		FailedAttempts: view.FailedAttempts,
		LockedUntil:    view.LockedUntil,
		Events:         make([]LockoutEventPayload, 0, len(view.Events)),
	}
	for _, event := range view.Events {
		resp.Events = append(resp.Events, LockoutEventPayload{
			ID:             event.ID,
			OccurredAt:     event.OccurredAt,
			FailedAttempts: event.FailedAttempts,
			UnlockAt:       event.UnlockAt,
		})
	}
	return resp
}

func nonNilErrors(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
