package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	passwordSymbols   = "!@#$%^&*"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidatePassword returns every policy rule the password violates, in a
// fixed order. An empty result means the password is acceptable.
func ValidatePassword(password string) []string {
	var (
		violations                   []string
		hasUpper, hasLower, hasDigit bool
		hasSymbol                    bool
	)
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		violations = append(violations, "Minimum 8 characters required")
	}
	if !hasUpper {
		violations = append(violations, "At least 1 uppercase letter required")
	}
	if !hasLower {
		violations = append(violations, "At least 1 lowercase letter required")
	}
	if !hasDigit {
		violations = append(violations, "At least 1 number required")
	}
	if !hasSymbol {
		violations = append(violations, "At least 1 special character (!@#$%^&*) required")
	}
	return violations
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// formatName collapses whitespace and title-cases each word.
func formatName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
