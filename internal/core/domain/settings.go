package domain

import "time"

// Defaults applied when neither configuration nor the settings row supply a value.
const (
	DefaultMaxFailedAttempts      = 5
	DefaultLockoutDurationMinutes = 30
	DefaultPasswordMinLength      = 8
	DefaultPasswordMaxLength      = 128
	DefaultPasswordHistoryLimit   = 5
	DefaultMinPasswordAgeHours    = 24

	MinPasswordHistoryLimit = 1
	MaxPasswordHistoryLimit = 24
)

// SecuritySettings holds the recognized lockout and password policy options.
type SecuritySettings struct {
	MaxFailedAttempts      int
	LockoutDurationMinutes int
	AutoUnlock             bool

	PasswordMinLength    int
	PasswordMaxLength    int
	RequireUppercase     bool
	RequireLowercase     bool
	RequireNumbers       bool
	RequireSpecialChars  bool
	EnableComplexity     bool
	PasswordHistoryLimit int
	MinPasswordAgeHours  int
	MinStrengthScore     int
}

// DefaultSecuritySettings returns the documented defaults.
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		MaxFailedAttempts:      DefaultMaxFailedAttempts,
		LockoutDurationMinutes: DefaultLockoutDurationMinutes,
		AutoUnlock:             true,
		PasswordMinLength:      DefaultPasswordMinLength,
		PasswordMaxLength:      DefaultPasswordMaxLength,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireNumbers:         true,
		RequireSpecialChars:    true,
		EnableComplexity:       true,
		PasswordHistoryLimit:   DefaultPasswordHistoryLimit,
		MinPasswordAgeHours:    DefaultMinPasswordAgeHours,
	}
}

// Normalize replaces invalid values with defaults and clamps bounded ones.
func (s SecuritySettings) Normalize() SecuritySettings {
	if s.MaxFailedAttempts <= 0 {
		s.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if s.LockoutDurationMinutes <= 0 {
		s.LockoutDurationMinutes = DefaultLockoutDurationMinutes
	}
	if s.PasswordMinLength <= 0 {
		s.PasswordMinLength = DefaultPasswordMinLength
	}
	if s.PasswordMaxLength <= 0 {
		s.PasswordMaxLength = DefaultPasswordMaxLength
	}
	if s.PasswordMaxLength < s.PasswordMinLength {
		s.PasswordMaxLength = s.PasswordMinLength
	}
	switch {
	case s.PasswordHistoryLimit < MinPasswordHistoryLimit:
		s.PasswordHistoryLimit = DefaultPasswordHistoryLimit
	case s.PasswordHistoryLimit > MaxPasswordHistoryLimit:
		s.PasswordHistoryLimit = MaxPasswordHistoryLimit
	}
	if s.MinPasswordAgeHours < 0 {
		s.MinPasswordAgeHours = 0
	}
	if s.MinStrengthScore < 0 {
		s.MinStrengthScore = 0
	}
	if s.MinStrengthScore > 4 {
		s.MinStrengthScore = 4
	}
	return s
}

// LockoutPolicy projects the lockout options.
func (s SecuritySettings) LockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailedAttempts: s.MaxFailedAttempts,
		LockoutDuration:   time.Duration(s.LockoutDurationMinutes) * time.Minute,
		AutoUnlock:        s.AutoUnlock,
	}
}

// MinPasswordAge returns the minimum age as a duration.
func (s SecuritySettings) MinPasswordAge() time.Duration {
	return time.Duration(s.MinPasswordAgeHours) * time.Hour
}
