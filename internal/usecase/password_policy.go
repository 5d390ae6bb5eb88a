package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/security"
)

// Rejection messages produced outside the complexity rules.
const (
	MsgCurrentPasswordRequired = "Current password is required"
	MsgCurrentPasswordInvalid  = "Current password is incorrect"
	MsgPasswordReused          = "Password was used recently. Please choose a different password"
	MsgPasswordSameAsCurrent   = "New password must be different from the current password"
)

// ErrUserNotFound is returned when the subject of a password operation does not exist.
var ErrUserNotFound = errors.New("user not found")

// PasswordCheck is the combined result of candidate validation.
type PasswordCheck struct {
	Valid  bool
	Errors []string
}

// AgeCheck reports whether the minimum password age has elapsed.
type AgeCheck struct {
	Allowed        bool
	HoursRemaining int
}

// ChangePasswordInput describes a credential change. Admin resets set
// SkipCurrent and leave CurrentPassword empty.
type ChangePasswordInput struct {
	UserID          string
	ActorID         string
	CurrentPassword string
	NewPassword     string
	SkipCurrent     bool
}

// ChangePasswordResult reports the outcome with every rejection reason.
type ChangePasswordResult struct {
	Success bool
	Errors  []string
}

// PasswordPolicyService enforces complexity, reuse and minimum age, and
// commits accepted credentials.
type PasswordPolicyService struct {
	users      port.UserRepository
	history    port.PasswordHistoryRepository
	hasher     port.PasswordHasher
	complexity *security.ComplexityPolicy
	settings   SettingsProvider
	events     port.SecurityEventSink
	publisher  port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewPasswordPolicyService wires the service. events and publisher may be nil.
func NewPasswordPolicyService(
	users port.UserRepository,
	history port.PasswordHistoryRepository,
	hasher port.PasswordHasher,
	complexity *security.ComplexityPolicy,
	settings SettingsProvider,
	events port.SecurityEventSink,
	publisher port.EventPublisher,
	logger *zap.Logger,
) *PasswordPolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if complexity == nil {
		complexity = security.NewComplexityPolicy()
	}
	return &PasswordPolicyService{
		users:      users,
		history:    history,
		hasher:     hasher,
		complexity: complexity,
		settings:   settings,
		events:     events,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithClock overrides the clock used for age checks and commit timestamps.
func (s *PasswordPolicyService) WithClock(now func() time.Time) *PasswordPolicyService {
	if now != nil {
		s.now = now
	}
	return s
}

// ValidateComplexity applies the configured complexity rules, reporting every violation.
func (s *PasswordPolicyService) ValidateComplexity(ctx context.Context, candidate string, userInputs ...string) PasswordCheck {
	return newPasswordCheck(s.complexity.Check(candidate, s.settings.Current(ctx), userInputs...))
}

// IsReused reports whether candidate matches any of the user's most recent
// history entries. An empty history is never a match. When no entry matches
// but one of them could not be checked, the result is an error wrapping
// domain.ErrStoreUnavailable rather than a clean "not reused".
func (s *PasswordPolicyService) IsReused(ctx context.Context, userID, candidate string) (bool, error) {
	limit := s.settings.Current(ctx).PasswordHistoryLimit

	entries, err := s.history.ListPasswordHistory(ctx, userID, limit)
	if err != nil {
		return false, fmt.Errorf("%w: list password history: %v", domain.ErrStoreUnavailable, err)
	}

	var unreadable error
	for _, entry := range entries {
		match, err := s.hasher.Verify(candidate, entry.PasswordHash)
		if err != nil {
			s.logger.Warn("unreadable password history entry", zap.String("user_id", userID), zap.String("entry_id", entry.ID), zap.Error(err))
			if unreadable == nil {
				unreadable = fmt.Errorf("%w: password history entry %s: %v", domain.ErrStoreUnavailable, entry.ID, err)
			}
			continue
		}
		if match {
			return true, nil
		}
	}
	if unreadable != nil {
		return false, unreadable
	}
	return false, nil
}

// CanChange reports whether userID may change their password now.
func (s *PasswordPolicyService) CanChange(ctx context.Context, userID string) (AgeCheck, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return AgeCheck{}, err
	}
	return s.ageCheck(ctx, *user), nil
}

func (s *PasswordPolicyService) ageCheck(ctx context.Context, user domain.User) AgeCheck {
	if user.PasswordChangedAt == nil {
		return AgeCheck{Allowed: true}
	}

	minAge := s.settings.Current(ctx).MinPasswordAge()
	elapsed := s.now().Sub(*user.PasswordChangedAt)
	if elapsed >= minAge {
		return AgeCheck{Allowed: true}
	}

	return AgeCheck{HoursRemaining: int(math.Ceil((minAge - elapsed).Hours()))}
}

// ValidateCandidate runs the age, complexity and reuse checks without committing.
func (s *PasswordPolicyService) ValidateCandidate(ctx context.Context, userID, candidate string) (PasswordCheck, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return PasswordCheck{}, err
	}
	reasons, err := s.candidateReasons(ctx, *user, candidate)
	if err != nil {
		return PasswordCheck{}, err
	}
	return newPasswordCheck(reasons), nil
}

func (s *PasswordPolicyService) candidateReasons(ctx context.Context, user domain.User, candidate string) ([]string, error) {
	reasons := make([]string, 0)

	if age := s.ageCheck(ctx, user); !age.Allowed {
		reasons = append(reasons, ageMessage(age.HoursRemaining))
	}

	complexity := s.complexity.Check(candidate, s.settings.Current(ctx), user.Email)
	reasons = append(reasons, complexity...)
	if len(complexity) > 0 {
		return reasons, nil
	}

	if user.PasswordHash != "" {
		same, err := s.hasher.Verify(candidate, user.PasswordHash)
		if err != nil {
			s.logger.Warn("verify against current credential failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		if same {
			return append(reasons, MsgPasswordSameAsCurrent), nil
		}
	}

	reused, err := s.IsReused(ctx, user.ID, candidate)
	if err != nil {
		return nil, err
	}
	if reused {
		reasons = append(reasons, MsgPasswordReused)
	}
	return reasons, nil
}

// ChangePassword verifies the current password unless skipped, validates the
// candidate and commits it. Rejections return a result listing every reason
// together with a *domain.ValidationError.
func (s *PasswordPolicyService) ChangePassword(ctx context.Context, input ChangePasswordInput) (ChangePasswordResult, error) {
	ctx, span := tracer.Start(ctx, "PasswordPolicyService.ChangePassword")
	defer span.End()

	user, err := s.loadUser(ctx, input.UserID)
	if err != nil {
		return ChangePasswordResult{}, err
	}

	if !input.SkipCurrent {
		if input.CurrentPassword == "" {
			return s.reject(ctx, *user, input.ActorID, []string{MsgCurrentPasswordRequired})
		}
		ok, err := s.hasher.Verify(input.CurrentPassword, user.PasswordHash)
		if err != nil {
			s.logger.Warn("verify current password failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		if !ok {
			return s.reject(ctx, *user, input.ActorID, []string{MsgCurrentPasswordInvalid})
		}
	}

	reasons, err := s.candidateReasons(ctx, *user, input.NewPassword)
	if err != nil {
		span.RecordError(err)
		return ChangePasswordResult{}, err
	}
	if len(reasons) > 0 {
		span.SetAttributes(attribute.Int("password.rejections", len(reasons)))
		return s.reject(ctx, *user, input.ActorID, reasons)
	}

	if err := s.commit(ctx, *user, input.NewPassword, input.ActorID); err != nil {
		span.RecordError(err)
		return ChangePasswordResult{}, err
	}
	return ChangePasswordResult{Success: true}, nil
}

// commit writes the credential first; history bookkeeping failures after that
// point are logged and do not undo the change.
func (s *PasswordPolicyService) commit(ctx context.Context, user domain.User, candidate, actorID string) error {
	hash, err := s.hasher.Hash(candidate)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return fmt.Errorf("%w: update password: %v", domain.ErrStoreUnavailable, err)
	}

	if err := s.history.InsertPasswordHistory(ctx, domain.PasswordHistoryEntry{
		ID:           s.newID(),
		UserID:       user.ID,
		PasswordHash: hash,
		CreatedAt:    now,
	}); err != nil {
		s.logger.Warn("insert password history failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		s.pruneHistory(ctx, user.ID)
	}

	if actorID == "" {
		actorID = user.ID
	}
	s.emit(ctx, domain.SecurityEvent{
		Type:      domain.EventPasswordChanged,
		UserID:    &user.ID,
		UserEmail: user.Email,
		Severity:  domain.SeverityLow,
		Details:   map[string]any{"changed_by": actorID},
	})
	if s.publisher != nil {
		if err := s.publisher.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			EventID:   s.newID(),
			UserID:    user.ID,
			ChangedBy: actorID,
			ChangedAt: now,
		}); err != nil {
			s.logger.Warn("publish password changed failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *PasswordPolicyService) pruneHistory(ctx context.Context, userID string) {
	limit := s.settings.Current(ctx).PasswordHistoryLimit

	entries, err := s.history.ListPasswordHistory(ctx, userID, 0)
	if err != nil {
		s.logger.Warn("list password history for prune failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(entries) <= limit {
		return
	}

	stale := make([]string, 0, len(entries)-limit)
	for _, entry := range entries[limit:] {
		stale = append(stale, entry.ID)
	}
	if err := s.history.DeletePasswordHistory(ctx, stale); err != nil {
		s.logger.Warn("prune password history failed", zap.String("user_id", userID), zap.Int("entries", len(stale)), zap.Error(err))
	}
}

func (s *PasswordPolicyService) reject(ctx context.Context, user domain.User, actorID string, reasons []string) (ChangePasswordResult, error) {
	if actorID == "" {
		actorID = user.ID
	}
	s.emit(ctx, domain.SecurityEvent{
		Type:     domain.EventPasswordChangeDenied,
		UserID:   &user.ID,
		Severity: domain.SeverityMedium,
		Details:  map[string]any{"reasons": len(reasons), "changed_by": actorID},
	})
	return ChangePasswordResult{Errors: reasons}, domain.NewValidationError(reasons...)
}

func (s *PasswordPolicyService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: load user: %v", domain.ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *PasswordPolicyService) emit(ctx context.Context, event domain.SecurityEvent) {
	if s.events != nil {
		s.events.Record(ctx, event)
	}
}

func newPasswordCheck(reasons []string) PasswordCheck {
	if reasons == nil {
		reasons = []string{}
	}
	return PasswordCheck{Valid: len(reasons) == 0, Errors: reasons}
}

func ageMessage(hours int) string {
	unit := "hours"
	if hours == 1 {
		unit = "hour"
	}
	return fmt.Sprintf("Password was changed recently. You can change it again in %d %s", hours, unit)
}
