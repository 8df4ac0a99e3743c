package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// MinPasswordLength is counted in runes, not bytes.
const MinPasswordLength = 8

// PasswordRule names one clause of the password policy.
type PasswordRule string

const (
	RuleMinLength PasswordRule = "min_length"
	RuleUppercase PasswordRule = "uppercase"
	RuleLowercase PasswordRule = "lowercase"
	RuleDigit     PasswordRule = "digit"
	RuleSpecial   PasswordRule = "special"
)

// Description is the user-facing wording of the rule.
func (r PasswordRule) Description() string {
	switch r {
	case RuleMinLength:
		return "Password must be at least 8 characters long"
	case RuleUppercase:
		return "Password must contain at least one uppercase letter"
	case RuleLowercase:
		return "Password must contain at least one lowercase letter"
	case RuleDigit:
		return "Password must contain at least one digit"
	case RuleSpecial:
		return "Password must contain at least one special character"
	default:
		return "Password does not satisfy the password policy"
	}
}

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword returns the first policy rule the password violates, or
// an empty rule when it satisfies all of them. Rules are checked in order:
// length, uppercase, lowercase, digit, special.
func ValidatePassword(password string) PasswordRule {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return RuleMinLength
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return RuleUppercase
	case !hasLower:
		return RuleLowercase
	case !hasDigit:
		return RuleDigit
	case !hasSpecial:
		return RuleSpecial
	}
	return ""
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
