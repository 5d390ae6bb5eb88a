package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/infra/logger"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// RequestIDHeader carries the caller supplied correlation id.
	RequestIDHeader = "X-Request-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// UserIDKey is the context key for authenticated user ID
	UserIDKey = "user_id"
	// PrincipalKey is the context key for the verified caller.
	PrincipalKey = "principal"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	RequestID string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext assigns trace and request identifiers and records the client
// metadata used by security events.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = traceID
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Header(RequestIDHeader, requestID)

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			RequestID: requestID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// SetPrincipal attaches the verified caller to the request.
func SetPrincipal(c *gin.Context, principal *domain.Principal) {
	if principal == nil {
		return
	}
	reqCtx := GetRequestContext(c)
	if principal.IPAddress == "" {
		principal.IPAddress = reqCtx.IP
	}
	if principal.UserAgent == "" {
		principal.UserAgent = reqCtx.UserAgent
	}
	reqCtx.UserID = principal.UserID

	c.Set(PrincipalKey, principal)
	c.Set(UserIDKey, principal.UserID)

	ctx := context.WithValue(c.Request.Context(), logger.UserIDKey{}, principal.UserID)
	c.Request = c.Request.WithContext(ctx)
}

// GetPrincipal returns the verified caller, if any.
func GetPrincipal(c *gin.Context) (*domain.Principal, bool) {
	value, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*domain.Principal)
	return principal, ok && principal != nil
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
