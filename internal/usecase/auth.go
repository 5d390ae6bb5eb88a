package usecase

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/logger"
)

// LoginRequest carries one login attempt. A nil Verifier falls back to
// checking Password against the stored hash.
type LoginRequest struct {
	Email     string
	Password  string
	Verifier  port.CredentialVerifier
	ClientIP  string
	UserAgent string
}

// LoginResult is the outcome of AttemptLogin. At most one of Success, Locked
// and RateLimited is set; none set means invalid credentials.
type LoginResult struct {
	Success     bool
	Locked      bool
	RateLimited bool
	UserID      string
	UnlockAt    *time.Time
	RateLimit   port.RateDecision
}

// UnlockResult reports the outcome of an administrative unlock.
type UnlockResult struct {
	Success bool
}

// AuthService composes the throttle, lockout guard, resolver and password
// policy into the operations exposed to handlers.
type AuthService struct {
	users     port.UserRepository
	hasher    port.PasswordHasher
	throttle  port.LoginThrottle
	guard     *LockoutGuard
	resolver  *PermissionResolver
	passwords *PasswordPolicyService
	events    port.SecurityEventSink
	metrics   port.SecurityMetrics
	logger    *zap.Logger
	dummyHash string

	failureFloor time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
}

// AuthServiceDeps groups the collaborators of AuthService.
type AuthServiceDeps struct {
	Users     port.UserRepository
	Hasher    port.PasswordHasher
	Throttle  port.LoginThrottle
	Guard     *LockoutGuard
	Resolver  *PermissionResolver
	Passwords *PasswordPolicyService
	Events    port.SecurityEventSink
	Metrics   port.SecurityMetrics
	Logger    *zap.Logger
	// DummyHash is verified against when no real credential is available so
	// every login path costs one verification.
	DummyHash string
	// FailureFloor pads every rejected login to at least this duration so
	// unknown identifiers and wrong passwords take the same time even though
	// only the latter touch the failure counter. Zero disables padding.
	FailureFloor time.Duration
}

// NewAuthService constructs the service.
func NewAuthService(deps AuthServiceDeps) *AuthService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = port.NoopSecurityMetrics{}
	}
	return &AuthService{
		users:     deps.Users,
		hasher:    deps.Hasher,
		throttle:  deps.Throttle,
		guard:     deps.Guard,
		resolver:  deps.Resolver,
		passwords: deps.Passwords,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		dummyHash: deps.DummyHash,

		failureFloor: deps.FailureFloor,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// WithClock overrides the time source used for failure padding.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithSleep overrides how failure padding waits.
func (s *AuthService) WithSleep(sleep func(ctx context.Context, d time.Duration)) *AuthService {
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// PasswordCredential verifies password against the stored hash with hasher.
func PasswordCredential(hasher port.PasswordHasher, password string) port.CredentialVerifier {
	return port.CredentialVerifierFunc(func(storedHash string) (bool, error) {
		if hasher == nil {
			return false, nil
		}
		return hasher.Verify(password, storedHash)
	})
}

// AttemptLogin runs the per-address throttle, the lockout check and the
// credential verification in that order. Unknown, inactive, locked and
// wrong-password attempts all cost one verification and are padded to the
// failure floor. A non-nil error means a store failed; the result then reports
// the restrictive outcome.
func (s *AuthService) AttemptLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.AttemptLogin")
	defer span.End()

	start := s.now()
	result, err := s.attemptLogin(ctx, req)
	if !result.Success && !result.RateLimited {
		s.padFailure(ctx, start)
	}
	return result, err
}

func (s *AuthService) padFailure(ctx context.Context, start time.Time) {
	if s.failureFloor <= 0 {
		return
	}
	if remaining := s.failureFloor - s.now().Sub(start); remaining > 0 {
		s.sleep(ctx, remaining)
	}
}

func (s *AuthService) attemptLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	span := trace.SpanFromContext(ctx)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	verifier := req.Verifier
	if verifier == nil {
		verifier = PasswordCredential(s.hasher, req.Password)
	}
	base := domain.SecurityEvent{
		UserEmail: email,
		IPAddress: req.ClientIP,
		UserAgent: req.UserAgent,
		Resource:  "auth.login",
	}
	log := logger.Scoped(s.logger, ctx).With(
		zap.String("email", logger.MaskEmail(email)),
		zap.String("ip", logger.MaskIP(req.ClientIP)),
	)

	if s.throttle != nil {
		decision, err := s.throttle.Allow(ctx, req.ClientIP)
		if err != nil {
			log.Warn("login throttle unavailable", zap.Error(err))
		} else if !decision.Allowed {
			span.SetAttributes(attribute.Bool("login.rate_limited", true))
			return LoginResult{RateLimited: true, RateLimit: decision}, nil
		}
	}

	if email == "" {
		s.burnVerification(verifier)
		s.loginFailed(ctx, base, "missing_identifier")
		return LoginResult{}, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.burnVerification(verifier)
		if isNotFound(err) {
			s.loginFailed(ctx, base, "unknown_identifier")
			return LoginResult{}, nil
		}
		log.Error("login lookup failed", zap.Error(err))
		event := base
		event.Type = domain.EventLockoutCheckError
		event.Severity = domain.SeverityCritical
		event.Details = map[string]any{"operation": "lookup_user", "error": err.Error()}
		s.emit(ctx, event)
		return LoginResult{}, wrapStore(err)
	}
	base.UserID = &user.ID

	status, err := s.guard.CheckUser(ctx, *user)
	if err != nil {
		s.burnVerification(verifier)
		return LoginResult{Locked: true, UserID: user.ID}, err
	}
	if status.Locked {
		s.burnVerification(verifier)
		event := base
		event.Type = domain.EventLoginBlockedLocked
		event.Severity = domain.SeverityMedium
		if status.UnlockAt != nil {
			event.Details = map[string]any{"locked_until": status.UnlockAt.Format(time.RFC3339)}
		}
		s.emit(ctx, event)
		return LoginResult{Locked: true, UserID: user.ID, UnlockAt: status.UnlockAt}, nil
	}

	ok, err := verifier.VerifyCredential(user.PasswordHash)
	if err != nil {
		log.Warn("credential verification error", zap.String("user_id", user.ID), zap.Error(err))
		ok = false
	}

	if !user.IsActive {
		s.loginFailed(ctx, base, "inactive_account")
		return LoginResult{}, nil
	}

	if !ok {
		outcome, err := s.guard.RecordFailure(ctx, user.ID)
		if err != nil {
			s.loginFailed(ctx, base, "invalid_credentials")
			return LoginResult{}, nil
		}
		if outcome.Crossed || outcome.AlreadyLocked {
			s.loginFailed(ctx, base, "invalid_credentials_locked")
			return LoginResult{Locked: true, UserID: user.ID, UnlockAt: outcome.LockedUntil}, nil
		}
		event := base
		event.Type = domain.EventLoginFailed
		event.Severity = domain.SeverityMedium
		event.Details = map[string]any{"reason": "invalid_credentials", "failed_attempts": outcome.FailedAttempts}
		s.emit(ctx, event)
		return LoginResult{}, nil
	}

	if err := s.guard.RecordSuccess(ctx, user.ID); err != nil {
		log.Warn("reset failed attempts after login", zap.String("user_id", user.ID), zap.Error(err))
	}

	event := base
	event.Type = domain.EventLoginSuccess
	event.Severity = domain.SeverityLow
	s.emit(ctx, event)

	return LoginResult{Success: true, UserID: user.ID}, nil
}

func (s *AuthService) burnVerification(verifier port.CredentialVerifier) {
	if verifier == nil || s.dummyHash == "" {
		return
	}
	_, _ = verifier.VerifyCredential(s.dummyHash)
}

func (s *AuthService) loginFailed(ctx context.Context, base domain.SecurityEvent, reason string) {
	base.Type = domain.EventLoginFailed
	base.Severity = domain.SeverityMedium
	base.Details = map[string]any{"reason": reason}
	s.emit(ctx, base)
}

// UnlockAccount clears the lockout of targetUserID on behalf of adminID.
func (s *AuthService) UnlockAccount(ctx context.Context, targetUserID, adminID string) (UnlockResult, error) {
	if err := s.guard.AdminUnlock(ctx, targetUserID, adminID); err != nil {
		return UnlockResult{}, err
	}
	return UnlockResult{Success: true}, nil
}

// CheckPermission reports whether userID holds permission.
func (s *AuthService) CheckPermission(ctx context.Context, userID, permission string) bool {
	allowed := s.resolver.HasPermission(ctx, userID, permission)
	s.metrics.ObserveDecision(permission, allowed)
	return allowed
}

// CheckAnyPermission reports whether userID holds at least one of permissions.
func (s *AuthService) CheckAnyPermission(ctx context.Context, userID string, permissions ...string) bool {
	allowed := s.resolver.HasAnyPermission(ctx, userID, permissions...)
	s.metrics.ObserveDecision(strings.Join(permissions, "|"), allowed)
	return allowed
}

// Permissions returns the caller's resolved permission names.
func (s *AuthService) Permissions(ctx context.Context, userID string) ([]string, error) {
	set, err := s.resolver.GetUserPermissions(ctx, userID)
	if err != nil {
		return []string{}, err
	}
	return set.Names(), nil
}

// ChangePassword changes userID's own password after verifying current.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, candidate string) (ChangePasswordResult, error) {
	return s.passwords.ChangePassword(ctx, ChangePasswordInput{
		UserID:          userID,
		ActorID:         userID,
		CurrentPassword: current,
		NewPassword:     candidate,
	})
}

func (s *AuthService) emit(ctx context.Context, event domain.SecurityEvent) {
	if s.events != nil {
		s.events.Record(ctx, event)
	}
}
