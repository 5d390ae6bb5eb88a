package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies every rule and reports all violations together.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// Violations runs every rule and returns each violation in rule order.
func (v *PasswordValidator) Violations(password string) []PasswordValidationError {
	if v == nil {
		return []PasswordValidationError{{Code: "unconfigured", Message: "password validator not configured"}}
	}
	if password == "" {
		return []PasswordValidationError{{Code: "required", Message: "Password is required"}}
	}

	out := make([]PasswordValidationError, 0)
	for _, rule := range v.rules {
		err := rule.Validate(password)
		if err == nil {
			continue
		}
		var vErr *PasswordValidationError
		if errors.As(err, &vErr) {
			out = append(out, *vErr)
			continue
		}
		out = append(out, PasswordValidationError{Code: "invalid", Message: err.Error()})
	}
	return out
}

// Messages is Violations projected to display strings.
func (v *PasswordValidator) Messages(password string) []string {
	violations := v.Violations(password)
	messages := make([]string, 0, len(violations))
	for _, violation := range violations {
		messages = append(messages, violation.Message)
	}
	return messages
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("Password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// MaxLengthRule bounds the password length.
func MaxLengthRule(max int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if max > 0 && len([]rune(password)) > max {
			return &PasswordValidationError{
				Code:    "max_length",
				Message: fmt.Sprintf("Password must be no more than %d characters long", max),
			}
		}
		return nil
	})
}

func requireClass(code, message string, match func(rune) bool) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PasswordValidationError{Code: code, Message: message}
	})
}

// RequireUppercaseRule ensures at least one uppercase letter.
func RequireUppercaseRule() PasswordRule {
	return requireClass("uppercase", "Password must contain at least one uppercase letter", unicode.IsUpper)
}

// RequireLowercaseRule ensures at least one lowercase letter.
func RequireLowercaseRule() PasswordRule {
	return requireClass("lowercase", "Password must contain at least one lowercase letter", unicode.IsLower)
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return requireClass("number", "Password must contain at least one number", unicode.IsDigit)
}

// RequireSymbolRule ensures the password contains at least one symbol (punctuation/mark).
func RequireSymbolRule() PasswordRule {
	return requireClass("special", "Password must contain at least one special character", func(r rune) bool {
		return unicode.IsSymbol(r) || unicode.IsPunct(r)
	})
}

// DenylistRule rejects passwords found in the denylist, case-insensitively.
func DenylistRule(denylist map[string]struct{}) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if _, found := denylist[strings.ToLower(password)]; found {
			return &PasswordValidationError{
				Code:    "common",
				Message: "Password is too common. Please choose a more unique password",
			}
		}
		return nil
	})
}

// NoRepeatRule rejects runs of three or more identical consecutive characters.
func NoRepeatRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		var (
			prev rune
			run  int
		)
		for i, r := range password {
			if i > 0 && r == prev {
				run++
			} else {
				run = 1
			}
			if run >= 3 {
				return &PasswordValidationError{
					Code:    "repetitive",
					Message: "Password should not contain repetitive characters",
				}
			}
			prev = r
		}
		return nil
	})
}

// NoSequenceRule rejects any 3-character window of the supplied sequences,
// read forward or reversed, case-insensitively.
func NoSequenceRule(sequences ...string) PasswordRule {
	windows := make([]string, 0)
	for _, seq := range sequences {
		for _, s := range []string{seq, reverse(seq)} {
			runes := []rune(s)
			for i := 0; i+3 <= len(runes); i++ {
				windows = append(windows, string(runes[i:i+3]))
			}
		}
	}

	return PasswordRuleFunc(func(password string) error {
		lowered := strings.ToLower(password)
		for _, w := range windows {
			if strings.Contains(lowered, w) {
				return &PasswordValidationError{
					Code:    "sequential",
					Message: "Password should not contain sequential patterns (abc, 123, etc.)",
				}
			}
		}
		return nil
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score to reject weak passwords.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "Password is too weak; choose a more complex value",
		}
	})
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
