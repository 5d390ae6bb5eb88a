package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/repository"
)

type fakeSettingsRepo struct {
	settings domain.SecuritySettings
	err      error
	calls    int
}

func (r *fakeSettingsRepo) GetSecuritySettings(_ context.Context, defaults domain.SecuritySettings) (domain.SecuritySettings, error) {
	r.calls++
	if r.err != nil {
		return defaults, r.err
	}
	return r.settings, nil
}

func TestSettingsServiceCachesOverride(t *testing.T) {
	override := domain.DefaultSecuritySettings()
	override.MaxFailedAttempts = 3
	repo := &fakeSettingsRepo{settings: override}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	svc := NewSettingsService(repo, domain.DefaultSecuritySettings(), time.Minute, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if got := svc.Current(context.Background()).MaxFailedAttempts; got != 3 {
			t.Fatalf("expected override value 3, got %d", got)
		}
	}
	if repo.calls != 1 {
		t.Fatalf("expected a single load, got %d", repo.calls)
	}

	now = now.Add(2 * time.Minute)
	svc.Current(context.Background())
	if repo.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", repo.calls)
	}

	svc.Invalidate()
	svc.Current(context.Background())
	if repo.calls != 3 {
		t.Fatalf("expected reload after Invalidate, got %d loads", repo.calls)
	}
}

func TestSettingsServiceFallsBackToDefaults(t *testing.T) {
	defaults := domain.DefaultSecuritySettings()
	defaults.LockoutDurationMinutes = 45

	svc := NewSettingsService(&fakeSettingsRepo{err: errStoreDown}, defaults, 0, zaptest.NewLogger(t))
	if got := svc.Current(context.Background()).LockoutDurationMinutes; got != 45 {
		t.Fatalf("expected configured default on load failure, got %d", got)
	}

	svc = NewSettingsService(&fakeSettingsRepo{err: repository.ErrNotFound}, defaults, 0, zaptest.NewLogger(t))
	if got := svc.Current(context.Background()).LockoutDurationMinutes; got != 45 {
		t.Fatalf("expected configured default without a settings row, got %d", got)
	}

	svc = NewSettingsService(nil, defaults, 0, nil)
	if got := svc.Current(context.Background()); got != defaults.Normalize() {
		t.Fatalf("expected defaults without a repository, got %+v", got)
	}
}

func TestSettingsServiceNormalizesOverride(t *testing.T) {
	override := domain.DefaultSecuritySettings()
	override.PasswordHistoryLimit = 99
	svc := NewSettingsService(&fakeSettingsRepo{settings: override}, domain.DefaultSecuritySettings(), time.Minute, nil)

	if got := svc.Current(context.Background()).PasswordHistoryLimit; got != domain.MaxPasswordHistoryLimit {
		t.Fatalf("expected history limit clamped to %d, got %d", domain.MaxPasswordHistoryLimit, got)
	}
}
