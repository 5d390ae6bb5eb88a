package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/infra/security"
)

type passwordFixture struct {
	users     *fakeUserStore
	history   *fakeHistory
	hasher    *fakeHasher
	sink      *recordingSink
	publisher *recordingPublisher
	service   *PasswordPolicyService
	now       time.Time
}

func newPasswordFixture(t *testing.T, settings domain.SecuritySettings, users ...domain.User) *passwordFixture {
	t.Helper()

	f := &passwordFixture{
		users:     newFakeUserStore(users...),
		history:   &fakeHistory{},
		hasher:    &fakeHasher{},
		sink:      &recordingSink{},
		publisher: &recordingPublisher{},
		now:       time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewPasswordPolicyService(
		f.users, f.history, f.hasher, security.NewComplexityPolicy(),
		staticSettings{settings: settings}, f.sink, f.publisher, zaptest.NewLogger(t),
	).WithClock(func() time.Time { return f.now })
	return f
}

func containsMessage(messages []string, fragment string) bool {
	for _, m := range messages {
		if strings.Contains(m, fragment) {
			return true
		}
	}
	return false
}

func TestValidateComplexityAcceptsStrongPassword(t *testing.T) {
	settings := domain.DefaultSecuritySettings()
	settings.PasswordMinLength = 12
	f := newPasswordFixture(t, settings)

	check := f.service.ValidateComplexity(context.Background(), "Ab1!Ab1!Ab1!")
	if !check.Valid || len(check.Errors) != 0 {
		t.Fatalf("expected valid password, got %v", check.Errors)
	}
}

func TestValidateComplexityReportsEveryViolation(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings())

	check := f.service.ValidateComplexity(context.Background(), "password")
	if check.Valid {
		t.Fatalf("expected invalid password")
	}
	for _, fragment := range []string{"uppercase", "number", "special", "too common"} {
		if !containsMessage(check.Errors, fragment) {
			t.Fatalf("expected an error mentioning %q, got %v", fragment, check.Errors)
		}
	}
}

func TestValidateComplexityDisabledOnlyChecksLength(t *testing.T) {
	settings := domain.DefaultSecuritySettings()
	settings.EnableComplexity = false
	f := newPasswordFixture(t, settings)

	if check := f.service.ValidateComplexity(context.Background(), "password"); !check.Valid {
		t.Fatalf("expected only length to apply, got %v", check.Errors)
	}
	check := f.service.ValidateComplexity(context.Background(), "short")
	if check.Valid || len(check.Errors) != 1 {
		t.Fatalf("expected single length error, got %v", check.Errors)
	}
}

func TestIsReused(t *testing.T) {
	settings := domain.DefaultSecuritySettings()
	settings.PasswordHistoryLimit = 2
	f := newPasswordFixture(t, settings)
	ctx := context.Background()

	reused, err := f.service.IsReused(ctx, "user-1", "Winter#2026x")
	if err != nil || reused {
		t.Fatalf("empty history must never match: %v %v", reused, err)
	}

	for i, pw := range []string{"Oldest#Pw91", "Middle#Pw92", "Newest#Pw93"} {
		f.history.entries = append(f.history.entries, domain.PasswordHistoryEntry{
			ID:           "h" + string(rune('1'+i)),
			UserID:       "user-1",
			PasswordHash: "hash:" + pw,
			CreatedAt:    f.now.Add(time.Duration(i) * time.Hour),
		})
	}

	for pw, want := range map[string]bool{
		"Newest#Pw93":  true,
		"Middle#Pw92":  true,
		"Oldest#Pw91":  false, // beyond the history limit
		"Winter#2026x": false,
	} {
		got, err := f.service.IsReused(ctx, "user-1", pw)
		if err != nil {
			t.Fatalf("IsReused returned error: %v", err)
		}
		if got != want {
			t.Fatalf("IsReused(%q) = %v, want %v", pw, got, want)
		}
	}

	f.history.listErr = errStoreDown
	if _, err := f.service.IsReused(ctx, "user-1", "x"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestIsReusedFailsClosedOnUnreadableEntry(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings())
	ctx := context.Background()
	f.history.entries = []domain.PasswordHistoryEntry{
		{ID: "h1", UserID: "user-1", PasswordHash: "$corrupt$", CreatedAt: f.now},
		{ID: "h2", UserID: "user-1", PasswordHash: "hash:Autumn#Pw71", CreatedAt: f.now.Add(-time.Hour)},
	}

	if _, err := f.service.IsReused(ctx, "user-1", "Spring#Pw72x"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable when an entry cannot be checked, got %v", err)
	}

	reused, err := f.service.IsReused(ctx, "user-1", "Autumn#Pw71")
	if err != nil || !reused {
		t.Fatalf("a readable match must still be reported: %v %v", reused, err)
	}
}

func TestCanChange(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		changedAt *time.Time
		allowed   bool
		remaining int
	}{
		{name: "never changed", changedAt: nil, allowed: true},
		{name: "just changed", changedAt: timePtr(now), remaining: 24},
		{name: "one hour ago", changedAt: timePtr(now.Add(-time.Hour)), remaining: 23},
		{name: "partial hour rounds up", changedAt: timePtr(now.Add(-23*time.Hour - 30*time.Minute)), remaining: 1},
		{name: "exactly min age", changedAt: timePtr(now.Add(-24 * time.Hour)), allowed: true},
		{name: "long ago", changedAt: timePtr(now.Add(-72 * time.Hour)), allowed: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{ID: "user-1", PasswordChangedAt: tc.changedAt})
			f.now = now

			got, err := f.service.CanChange(context.Background(), "user-1")
			if err != nil {
				t.Fatalf("CanChange returned error: %v", err)
			}
			if got.Allowed != tc.allowed || got.HoursRemaining != tc.remaining {
				t.Fatalf("expected allowed=%v remaining=%d, got %+v", tc.allowed, tc.remaining, got)
			}
		})
	}
}

func TestCanChangeUnknownUser(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings())

	if _, err := f.service.CanChange(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangePasswordCommits(t *testing.T) {
	until := time.Date(2026, 3, 2, 12, 10, 0, 0, time.UTC)
	f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{
		ID:             "user-1",
		Email:          "jane@payroll.example",
		PasswordHash:   "hash:Current#Pw71",
		FailedAttempts: 5,
		LockedUntil:    &until,
	})

	result, err := f.service.ChangePassword(context.Background(), ChangePasswordInput{
		UserID:          "user-1",
		CurrentPassword: "Current#Pw71",
		NewPassword:     "Fresh#Pw82x",
	})
	if err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if !result.Success || len(result.Errors) != 0 {
		t.Fatalf("expected success, got %+v", result)
	}

	user := f.users.snapshot("user-1")
	if user.PasswordHash != "hash:Fresh#Pw82x" {
		t.Fatalf("credential not updated: %s", user.PasswordHash)
	}
	if user.PasswordChangedAt == nil || !user.PasswordChangedAt.Equal(f.now) {
		t.Fatalf("password_changed_at not stamped: %v", user.PasswordChangedAt)
	}
	if user.FailedAttempts != 0 || user.LockedUntil != nil {
		t.Fatalf("lockout fields not reset: %+v", user)
	}
	if len(f.history.entries) != 1 || f.history.entries[0].PasswordHash != "hash:Fresh#Pw82x" {
		t.Fatalf("expected history entry for new credential, got %+v", f.history.entries)
	}
	if len(f.sink.ofType(domain.EventPasswordChanged)) != 1 {
		t.Fatalf("expected password changed event")
	}
	if len(f.publisher.password) != 1 || f.publisher.password[0].UserID != "user-1" {
		t.Fatalf("expected password changed publication, got %+v", f.publisher.password)
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{ID: "user-1", PasswordHash: "hash:Current#Pw71"})

	result, err := f.service.ChangePassword(context.Background(), ChangePasswordInput{
		UserID:          "user-1",
		CurrentPassword: "guess",
		NewPassword:     "Fresh#Pw82x",
	})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if result.Success || len(result.Errors) != 1 || result.Errors[0] != MsgCurrentPasswordInvalid {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.users.updateCalls != 0 {
		t.Fatalf("credential must not be written")
	}
}

func TestChangePasswordCollectsAgeAndComplexityErrors(t *testing.T) {
	changed := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{ID: "user-1", PasswordHash: "hash:Current#Pw71", PasswordChangedAt: &changed})

	result, err := f.service.ChangePassword(context.Background(), ChangePasswordInput{
		UserID:      "user-1",
		NewPassword: "abc",
		SkipCurrent: true,
	})
	reasons := domain.ValidationReasons(err)
	if len(reasons) == 0 {
		t.Fatalf("expected validation reasons, got %v", err)
	}
	if !containsMessage(result.Errors, "23 hours") {
		t.Fatalf("expected age error, got %v", result.Errors)
	}
	if !containsMessage(result.Errors, "at least 8 characters") || !containsMessage(result.Errors, "sequential") {
		t.Fatalf("expected complexity errors alongside age error, got %v", result.Errors)
	}
	if len(f.sink.ofType(domain.EventPasswordChangeDenied)) != 1 {
		t.Fatalf("expected rejection event")
	}
}

func TestChangePasswordRejectsReuseAndCurrent(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{ID: "user-1", PasswordHash: "hash:Current#Pw71"})
	f.history.entries = []domain.PasswordHistoryEntry{{ID: "h1", UserID: "user-1", PasswordHash: "hash:Earlier#Pw52"}}
	ctx := context.Background()

	result, _ := f.service.ChangePassword(ctx, ChangePasswordInput{UserID: "user-1", NewPassword: "Earlier#Pw52", SkipCurrent: true})
	if result.Success || !containsMessage(result.Errors, "used recently") {
		t.Fatalf("expected reuse rejection, got %+v", result)
	}

	result, _ = f.service.ChangePassword(ctx, ChangePasswordInput{UserID: "user-1", NewPassword: "Current#Pw71", SkipCurrent: true})
	if result.Success || !containsMessage(result.Errors, "different from the current") {
		t.Fatalf("expected same-as-current rejection, got %+v", result)
	}
}

func TestChangePasswordHistoryFailureIsNotFatal(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{ID: "user-1", PasswordHash: "hash:Current#Pw71"})
	f.history.insertErr = errStoreDown

	result, err := f.service.ChangePassword(context.Background(), ChangePasswordInput{UserID: "user-1", NewPassword: "Fresh#Pw82x", SkipCurrent: true})
	if err != nil || !result.Success {
		t.Fatalf("history failure must not fail the change: %+v %v", result, err)
	}
	if f.users.snapshot("user-1").PasswordHash != "hash:Fresh#Pw82x" {
		t.Fatalf("credential should be updated")
	}
}

func TestChangePasswordPrunesHistory(t *testing.T) {
	settings := domain.DefaultSecuritySettings()
	settings.PasswordHistoryLimit = 2
	f := newPasswordFixture(t, settings, domain.User{ID: "user-1", PasswordHash: "hash:Current#Pw71"})
	f.history.entries = []domain.PasswordHistoryEntry{
		{ID: "h1", UserID: "user-1", PasswordHash: "hash:First#Pw11"},
		{ID: "h2", UserID: "user-1", PasswordHash: "hash:Second#Pw22"},
		{ID: "h3", UserID: "user-1", PasswordHash: "hash:Current#Pw71"},
	}

	result, err := f.service.ChangePassword(context.Background(), ChangePasswordInput{UserID: "user-1", NewPassword: "Fresh#Pw82x", SkipCurrent: true})
	if err != nil || !result.Success {
		t.Fatalf("ChangePassword failed: %+v %v", result, err)
	}
	if len(f.history.entries) != 2 {
		t.Fatalf("expected history pruned to 2, got %d", len(f.history.entries))
	}
	if len(f.history.deleted) != 2 || f.history.deleted[0] != "h2" || f.history.deleted[1] != "h1" {
		t.Fatalf("expected oldest entries pruned, got %v", f.history.deleted)
	}
}

func TestChangePasswordStoreFailure(t *testing.T) {
	f := newPasswordFixture(t, domain.DefaultSecuritySettings(), domain.User{ID: "user-1", PasswordHash: "hash:Current#Pw71"})
	f.users.updateErr = errStoreDown

	_, err := f.service.ChangePassword(context.Background(), ChangePasswordInput{UserID: "user-1", NewPassword: "Fresh#Pw82x", SkipCurrent: true})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(f.history.entries) != 0 {
		t.Fatalf("history must not be written when the credential update fails")
	}
}
