package security

import (
	"github.com/arklim/payroll-access/internal/core/domain"
)

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password123": {},
	"12345678":    {},
	"qwerty":      {},
	"abc123":      {},
	"password1":   {},
	"admin":       {},
	"letmein":     {},
	"welcome":     {},
	"monkey":      {},
	"123456789":   {},
	"password!":   {},
	"admin123":    {},
	"iloveyou":    {},
	"11111111":    {},
}

// Sequences are matched as separate rows, so "poa" is not a keyboard walk.
var sequentialRuns = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"0123456789",
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
}

// ComplexityPolicy builds validators from the active security settings.
type ComplexityPolicy struct{}

// NewComplexityPolicy returns the settings-driven complexity policy.
func NewComplexityPolicy() *ComplexityPolicy {
	return &ComplexityPolicy{}
}

// Validator assembles the rule set for settings. With complexity disabled only
// the minimum length applies. userInputs feed the optional strength estimate.
func (p *ComplexityPolicy) Validator(settings domain.SecuritySettings, userInputs ...string) *PasswordValidator {
	settings = settings.Normalize()

	if !settings.EnableComplexity {
		return NewPasswordValidator(MinLengthRule(settings.PasswordMinLength))
	}

	rules := []PasswordRule{
		MinLengthRule(settings.PasswordMinLength),
		MaxLengthRule(settings.PasswordMaxLength),
	}
	if settings.RequireUppercase {
		rules = append(rules, RequireUppercaseRule())
	}
	if settings.RequireLowercase {
		rules = append(rules, RequireLowercaseRule())
	}
	if settings.RequireNumbers {
		rules = append(rules, RequireDigitRule())
	}
	if settings.RequireSpecialChars {
		rules = append(rules, RequireSymbolRule())
	}
	rules = append(rules,
		DenylistRule(commonPasswords),
		NoRepeatRule(),
		NoSequenceRule(sequentialRuns...),
	)
	if settings.MinStrengthScore > 0 {
		rules = append(rules, RequirePasswordStrengthRule(settings.MinStrengthScore, userInputs...))
	}

	return NewPasswordValidator(rules...)
}

// Check returns every violation message for password, empty when it passes.
func (p *ComplexityPolicy) Check(password string, settings domain.SecuritySettings, userInputs ...string) []string {
	return p.Validator(settings, userInputs...).Messages(password)
}
