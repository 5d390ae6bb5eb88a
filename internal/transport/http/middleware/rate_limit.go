package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/usecase"
)

const (
	rateLimitProblemType  = "https://payroll.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule binds a sliding-window rule to a request identifier.
type RateLimitRule struct {
	usecase.RateLimitRule
	Identifier IdentifierFunc
}

// RateLimiter adapts the sliding-window limiter to gin.
type RateLimiter struct {
	limiter *usecase.SlidingWindowLimiter
	logger  *zap.Logger
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(limiter *usecase.SlidingWindowLimiter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{limiter: limiter, logger: logger}
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// PrincipalIdentifier scopes a rule to the authenticated user.
func PrincipalIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		return GetAuthenticatedUserID(c)
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. The most
// restrictive decision is reported in the X-RateLimit-* headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || !rule.Enabled() {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		if len(filtered) == 0 || rl == nil || rl.limiter == nil {
			c.Next()
			return
		}

		var best *port.RateDecision
		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			decision, err := rl.limiter.Evaluate(c.Request.Context(), rule.RateLimitRule, identifier)
			if err != nil {
				rl.logger.Warn("rate limit check failed", zap.String("rule", rule.Name), zap.Error(err))
				continue
			}

			if !decision.Allowed {
				RespondRateLimited(c, decision)
				return
			}
			if best == nil || moreRestrictive(*best, decision) {
				snapshot := decision
				best = &snapshot
			}
		}

		if best != nil {
			ApplyRateLimitHeaders(c, *best)
		}
		c.Next()
	}
}

func moreRestrictive(current, candidate port.RateDecision) bool {
	if candidate.Remaining != current.Remaining {
		return candidate.Remaining < current.Remaining
	}
	return candidate.Reset.Before(current.Reset)
}

// ApplyRateLimitHeaders writes the X-RateLimit-* headers and, for a denied
// decision, Retry-After.
func ApplyRateLimitHeaders(c *gin.Context, decision port.RateDecision) {
	if decision.Limit <= 0 {
		return
	}
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Reset.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))
	}
	if !decision.Allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(decision)))
	}
}

// RespondRateLimited aborts the request with 429 and a problem-details body.
func RespondRateLimited(c *gin.Context, decision port.RateDecision) {
	decision.Allowed = false
	ApplyRateLimitHeaders(c, decision)

	seconds := retrySeconds(decision)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(decision port.RateDecision) int {
	seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}
