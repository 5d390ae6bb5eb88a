package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/repository"
)

const defaultSettingsCacheTTL = time.Minute

// SettingsService serves the effective security settings: configured defaults
// overlaid with the administrator-maintained row.
type SettingsService struct {
	repo     port.SettingsRepository
	defaults domain.SecuritySettings
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	current  domain.SecuritySettings
	loadedAt time.Time
	loaded   bool
}

// NewSettingsService builds the service. A nil repo serves defaults only.
func NewSettingsService(repo port.SettingsRepository, defaults domain.SecuritySettings, ttl time.Duration, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultSettingsCacheTTL
	}
	return &SettingsService{
		repo:     repo,
		defaults: defaults.Normalize(),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for cache expiry.
func (s *SettingsService) WithClock(now func() time.Time) *SettingsService {
	if now != nil {
		s.now = now
	}
	return s
}

// Current returns the cached settings, reloading once the cache expires.
func (s *SettingsService) Current(ctx context.Context) domain.SecuritySettings {
	now := s.now()

	s.mu.RLock()
	if s.loaded && now.Sub(s.loadedAt) < s.ttl {
		current := s.current
		s.mu.RUnlock()
		return current
	}
	s.mu.RUnlock()

	if s.repo == nil {
		return s.defaults
	}

	settings, err := s.repo.GetSecuritySettings(ctx, s.defaults)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		settings = s.defaults
	default:
		s.logger.Warn("load security settings failed; using configured defaults", zap.Error(err))
		return s.defaults
	}
	settings = settings.Normalize()

	s.mu.Lock()
	s.current = settings
	s.loadedAt = now
	s.loaded = true
	s.mu.Unlock()

	return settings
}

// Invalidate forces the next Current call to reload.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// Defaults returns the configured defaults.
func (s *SettingsService) Defaults() domain.SecuritySettings {
	return s.defaults
}
