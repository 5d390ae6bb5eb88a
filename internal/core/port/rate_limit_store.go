package port

import (
	"context"
	"time"
)

// RateLimitStore keeps timestamped attempts per identifier for sliding-window limits.
type RateLimitStore interface {
	// Admit drops attempts at or before reference-window and records an attempt
	// at reference only when fewer than limit remain. Both happen as one step,
	// so concurrent callers can never admit more than limit attempts.
	Admit(ctx context.Context, identifier string, limit int, window time.Duration, reference time.Time) (WindowState, error)
}

// WindowState describes a window right after Admit.
type WindowState struct {
	Admitted bool
	// Count includes the admitted attempt.
	Count     int
	Oldest    time.Time
	HasOldest bool
}

// RateDecision is the outcome of evaluating one attempt against a window.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// LoginThrottle limits login attempts per client address.
type LoginThrottle interface {
	Allow(ctx context.Context, clientAddress string) (RateDecision, error)
}
