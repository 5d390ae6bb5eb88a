package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/logger"
)

// Defaults for the per-address login window.
const (
	LoginRuleName           = "auth_login_ip"
	DefaultLoginMaxAttempts = 5
	DefaultLoginWindow      = 15 * time.Minute
)

// RateLimitRule configures one sliding window.
type RateLimitRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule can be evaluated.
func (r RateLimitRule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// SlidingWindowLimiter evaluates sliding-window rules against a RateLimitStore.
type SlidingWindowLimiter struct {
	store port.RateLimitStore
	now   func() time.Time
}

// NewSlidingWindowLimiter wraps store.
func NewSlidingWindowLimiter(store port.RateLimitStore) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{store: store, now: time.Now}
}

// WithClock allows injection of a custom clock.
func (l *SlidingWindowLimiter) WithClock(now func() time.Time) *SlidingWindowLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Evaluate admits the attempt when the window has room and denies it
// otherwise. Denied attempts are not recorded.
func (l *SlidingWindowLimiter) Evaluate(ctx context.Context, rule RateLimitRule, identifier string) (port.RateDecision, error) {
	now := l.now()
	key := fmt.Sprintf("%s:%s", rule.Name, identifier)

	state, err := l.store.Admit(ctx, key, rule.Limit, rule.Window, now)
	if err != nil {
		return port.RateDecision{}, err
	}

	decision := port.RateDecision{
		Allowed: state.Admitted,
		Limit:   rule.Limit,
		Reset:   now.Add(rule.Window),
	}
	if state.HasOldest {
		decision.Reset = state.Oldest.Add(rule.Window)
	}
	if state.Admitted {
		decision.Remaining = rule.Limit - state.Count
		if decision.Remaining < 0 {
			decision.Remaining = 0
		}
	}
	decision.RetryAfter = nonNegative(decision.Reset.Sub(now))
	return decision, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// AddressThrottle applies one rule per client address. Store failures let the
// attempt through; the per-account lockout still applies.
type AddressThrottle struct {
	limiter *SlidingWindowLimiter
	rule    RateLimitRule
	events  port.SecurityEventSink
	metrics port.SecurityMetrics
	logger  *zap.Logger
}

// NewAddressThrottle builds a throttle for rule.
func NewAddressThrottle(limiter *SlidingWindowLimiter, rule RateLimitRule, events port.SecurityEventSink, metrics port.SecurityMetrics, log *zap.Logger) *AddressThrottle {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = port.NoopSecurityMetrics{}
	}
	if rule.Name == "" {
		rule.Name = "default"
	}
	return &AddressThrottle{limiter: limiter, rule: rule, events: events, metrics: metrics, logger: log}
}

// Rule returns the configured rule.
func (t *AddressThrottle) Rule() RateLimitRule {
	return t.rule
}

// Allow evaluates one attempt from clientAddress.
func (t *AddressThrottle) Allow(ctx context.Context, clientAddress string) (port.RateDecision, error) {
	clientAddress = strings.TrimSpace(clientAddress)
	if t == nil || t.limiter == nil || !t.rule.Enabled() || clientAddress == "" {
		return port.RateDecision{Allowed: true}, nil
	}

	decision, err := t.limiter.Evaluate(ctx, t.rule, clientAddress)
	if err != nil {
		t.logger.Warn("rate limit check failed",
			zap.String("rule", t.rule.Name),
			zap.String("ip", logger.MaskIP(clientAddress)),
			zap.Error(err),
		)
		t.emit(ctx, domain.SecurityEvent{
			Type:      domain.EventLoginRateLimited,
			IPAddress: clientAddress,
			Severity:  domain.SeverityHigh,
			Details:   map[string]any{"rule": t.rule.Name, "error": err.Error(), "decision": "allowed_on_error"},
		})
		return port.RateDecision{Allowed: true, Limit: t.rule.Limit}, nil
	}

	if !decision.Allowed {
		t.metrics.IncRateLimited(t.rule.Name)
		t.emit(ctx, domain.SecurityEvent{
			Type:      domain.EventLoginRateLimited,
			IPAddress: clientAddress,
			Severity:  domain.SeverityMedium,
			Details: map[string]any{
				"rule":        t.rule.Name,
				"limit":       t.rule.Limit,
				"window":      t.rule.Window.String(),
				"retry_after": int(decision.RetryAfter.Seconds()),
			},
		})
	}
	return decision, nil
}

func (t *AddressThrottle) emit(ctx context.Context, event domain.SecurityEvent) {
	if t.events != nil {
		t.events.Record(ctx, event)
	}
}

var _ port.LoginThrottle = (*AddressThrottle)(nil)
