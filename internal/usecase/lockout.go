package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

const lockoutHistoryLimit = 10

// SettingsProvider returns the effective security settings.
type SettingsProvider interface {
	Current(ctx context.Context) domain.SecuritySettings
}

// PermissionChecker answers single-permission questions about a user.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) bool
}

// LockoutView is the administrative snapshot of an account's lockout state.
type LockoutView struct {
	UserID         string
	State          domain.LockoutState
	FailedAttempts int
	LockedUntil    *time.Time
	Events         []domain.LockoutEvent
}

// LockoutGuard tracks failed logins per account and suspends login once the
// configured threshold is reached.
type LockoutGuard struct {
	users       port.UserRepository
	store       port.LockoutStore
	settings    SettingsProvider
	permissions PermissionChecker
	events      port.SecurityEventSink
	metrics     port.SecurityMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewLockoutGuard wires the guard. events and metrics are optional.
func NewLockoutGuard(
	users port.UserRepository,
	store port.LockoutStore,
	settings SettingsProvider,
	permissions PermissionChecker,
	events port.SecurityEventSink,
	metrics port.SecurityMetrics,
	logger *zap.Logger,
) *LockoutGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = port.NoopSecurityMetrics{}
	}
	return &LockoutGuard{
		users:       users,
		store:       store,
		settings:    settings,
		permissions: permissions,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the clock used for lock arithmetic.
func (g *LockoutGuard) WithClock(now func() time.Time) *LockoutGuard {
	if now != nil {
		g.now = now
	}
	return g
}

// RecordFailure counts one failed attempt. Attempts against a locked account
// change nothing, so the lock cannot be extended by repeated attempts.
func (g *LockoutGuard) RecordFailure(ctx context.Context, userID string) (domain.FailureOutcome, error) {
	ctx, span := tracer.Start(ctx, "LockoutGuard.RecordFailure")
	defer span.End()

	policy := g.settings.Current(ctx).LockoutPolicy()
	now := g.now().UTC()

	outcome, err := g.store.RegisterFailure(ctx, userID, policy, now)
	if err != nil {
		span.RecordError(err)
		g.logger.Error("record failed attempt", zap.String("user_id", userID), zap.Error(err))
		g.emit(ctx, domain.SecurityEvent{
			Type:     domain.EventLockoutCheckError,
			UserID:   &userID,
			Severity: domain.SeverityCritical,
			Details:  map[string]any{"operation": "record_failure", "error": err.Error()},
		})
		return domain.FailureOutcome{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	span.SetAttributes(
		attribute.Int("lockout.failed_attempts", outcome.FailedAttempts),
		attribute.Bool("lockout.crossed", outcome.Crossed),
	)

	if outcome.AlreadyLocked {
		return outcome, nil
	}
	g.metrics.IncFailedAttempt()

	if outcome.Crossed && outcome.LockedUntil != nil {
		g.metrics.IncLockout()
		g.logger.Warn("account locked",
			zap.String("user_id", userID),
			zap.Int("failed_attempts", outcome.FailedAttempts),
			zap.Time("locked_until", *outcome.LockedUntil),
		)
		g.emit(ctx, domain.SecurityEvent{
			Type:     domain.EventAccountLocked,
			UserID:   &userID,
			Severity: domain.SeverityHigh,
			Details: map[string]any{
				"failed_attempts":  outcome.FailedAttempts,
				"locked_until":     outcome.LockedUntil.Format(time.RFC3339),
				"lockout_duration": policy.LockoutDuration.String(),
			},
		})
	}
	return outcome, nil
}

// RecordSuccess clears both lockout fields regardless of prior state.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, userID string) error {
	if err := g.store.ResetFailures(ctx, userID); err != nil {
		return fmt.Errorf("%w: reset failed attempts: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// CheckLocked reports whether userID is inside an active lockout window. An
// elapsed lock is cleared on observation when auto-unlock is enabled. Store
// failures report the account as locked.
func (g *LockoutGuard) CheckLocked(ctx context.Context, userID string) (domain.LockStatus, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.LockStatus{Locked: true}, err
		}
		return g.checkFailed(ctx, userID, err)
	}
	return g.CheckUser(ctx, *user)
}

// CheckUser is CheckLocked for an already loaded user row.
func (g *LockoutGuard) CheckUser(ctx context.Context, user domain.User) (domain.LockStatus, error) {
	now := g.now().UTC()

	switch user.LockState(now) {
	case domain.LockoutOpen:
		return domain.LockStatus{}, nil
	case domain.LockoutLocked:
		until := *user.LockedUntil
		return domain.LockStatus{Locked: true, UnlockAt: &until}, nil
	}

	if !g.settings.Current(ctx).AutoUnlock {
		return domain.LockStatus{Locked: true}, nil
	}

	cleared, err := g.store.ClearExpiredLock(ctx, user.ID, now)
	if err != nil {
		return g.checkFailed(ctx, user.ID, err)
	}
	if cleared {
		g.logger.Info("expired lock cleared", zap.String("user_id", user.ID))
	}
	return domain.LockStatus{}, nil
}

func (g *LockoutGuard) checkFailed(ctx context.Context, userID string, err error) (domain.LockStatus, error) {
	g.logger.Error("lockout check failed", zap.String("user_id", userID), zap.Error(err))
	g.emit(ctx, domain.SecurityEvent{
		Type:     domain.EventLockoutCheckError,
		UserID:   &userID,
		Severity: domain.SeverityCritical,
		Details:  map[string]any{"operation": "check_locked", "error": err.Error()},
	})
	return domain.LockStatus{Locked: true}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// AdminUnlock clears the lockout fields of targetID on behalf of adminID, who
// must hold users.unlock.
func (g *LockoutGuard) AdminUnlock(ctx context.Context, targetID, adminID string) error {
	targetID = strings.TrimSpace(targetID)
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return domain.ErrAuthenticationRequired
	}
	if targetID == "" {
		return domain.NewValidationError("target user id is required")
	}

	if g.permissions == nil || !g.permissions.HasPermission(ctx, adminID, domain.PermUsersUnlock) {
		g.emit(ctx, domain.SecurityEvent{
			Type:     domain.EventUnauthorizedUnlock,
			UserID:   &adminID,
			Resource: targetID,
			Severity: domain.SeverityHigh,
			Details:  map[string]any{"target_user_id": targetID},
		})
		return domain.ErrAuthorizationDenied
	}

	if err := g.store.ResetFailures(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		g.emit(ctx, domain.SecurityEvent{
			Type:     domain.EventAccountUnlockFailed,
			UserID:   &adminID,
			Resource: targetID,
			Severity: domain.SeverityCritical,
			Details:  map[string]any{"target_user_id": targetID, "error": err.Error()},
		})
		return fmt.Errorf("%w: unlock account: %v", domain.ErrStoreUnavailable, err)
	}

	g.logger.Info("account unlocked by administrator", zap.String("user_id", targetID), zap.String("admin_id", adminID))
	g.emit(ctx, domain.SecurityEvent{
		Type:     domain.EventAccountUnlocked,
		UserID:   &targetID,
		Resource: targetID,
		Severity: domain.SeverityMedium,
		Details:  map[string]any{"unlocked_by": adminID},
	})
	return nil
}

// Status returns the lockout snapshot and recent lockout events of userID.
func (g *LockoutGuard) Status(ctx context.Context, userID string) (LockoutView, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LockoutView{}, err
		}
		return LockoutView{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	events, err := g.store.ListLockoutEvents(ctx, userID, lockoutHistoryLimit)
	if err != nil {
		return LockoutView{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return LockoutView{
		UserID:         user.ID,
		State:          user.LockState(g.now().UTC()),
		FailedAttempts: user.FailedAttempts,
		LockedUntil:    user.LockedUntil,
		Events:         events,
	}, nil
}

func (g *LockoutGuard) emit(ctx context.Context, event domain.SecurityEvent) {
	if g.events != nil {
		g.events.Record(ctx, event)
	}
}
