package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

const (
	msgAuthenticationRequired = "authentication required"
	msgInsufficientPermission = "insufficient permissions"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// PermissionChecker answers permission questions for an authenticated user.
// Implementations fail closed.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, permission string) bool
	CheckAnyPermission(ctx context.Context, userID string, permissions ...string) bool
}

// RequireAuth resolves the bearer credential through the identity provider and
// attaches the principal. Requests without a verifiable caller get 401.
func RequireAuth(verifier port.IdentityVerifier, events port.SecurityEventSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, reason := bearerToken(c.GetHeader("Authorization"))
		if reason == "" {
			principal, err := verifier.Verify(c.Request.Context(), token)
			if err == nil && principal != nil {
				SetPrincipal(c, principal)
				c.Next()
				return
			}
			reason = "invalid_credential"
		}

		record(c, events, domain.SecurityEvent{
			Type:     domain.EventAuthenticationMissing,
			Severity: domain.SeverityMedium,
			Details:  map[string]any{"reason": reason},
		})
		c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, msgAuthenticationRequired))
	}
}

func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing_header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "malformed_header"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "missing_token"
	}
	return token, ""
}

// RequirePermission admits the request only when the caller holds permission.
func RequirePermission(checker PermissionChecker, events port.SecurityEventSink, permission string) gin.HandlerFunc {
	return authorize(events, []string{permission}, func(ctx context.Context, userID string) bool {
		return checker.CheckPermission(ctx, userID, permission)
	})
}

// RequireAnyPermission admits the request when the caller holds at least one of permissions.
func RequireAnyPermission(checker PermissionChecker, events port.SecurityEventSink, permissions ...string) gin.HandlerFunc {
	return authorize(events, permissions, func(ctx context.Context, userID string) bool {
		return checker.CheckAnyPermission(ctx, userID, permissions...)
	})
}

func authorize(events port.SecurityEventSink, required []string, allowed func(context.Context, string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetAuthenticatedUserID(c)
		if !ok {
			record(c, events, domain.SecurityEvent{
				Type:     domain.EventAuthenticationMissing,
				Severity: domain.SeverityMedium,
				Details:  map[string]any{"required_permissions": required},
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, msgAuthenticationRequired))
			return
		}

		event := domain.SecurityEvent{
			UserID:  &userID,
			Details: map[string]any{"required_permissions": required, "method": c.Request.Method},
		}

		if !allowed(c.Request.Context(), userID) {
			event.Type = domain.EventPermissionDenied
			event.Severity = domain.SeverityMedium
			record(c, events, event)
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, msgInsufficientPermission))
			return
		}

		event.Type = domain.EventPermissionGranted
		event.Severity = domain.SeverityLow
		record(c, events, event)
		c.Next()
	}
}

func record(c *gin.Context, events port.SecurityEventSink, event domain.SecurityEvent) {
	if events == nil {
		return
	}
	reqCtx := GetRequestContext(c)
	event.IPAddress = reqCtx.IP
	event.UserAgent = reqCtx.UserAgent
	if event.Resource == "" {
		event.Resource = c.FullPath()
		if event.Resource == "" {
			event.Resource = c.Request.URL.Path
		}
	}
	if principal, ok := GetPrincipal(c); ok && event.UserEmail == "" {
		event.UserEmail = principal.Email
	}
	events.Record(c.Request.Context(), event)
}
