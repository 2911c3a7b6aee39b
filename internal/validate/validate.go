// Package validate holds the pure input checks run before anything reaches
// the crypto or storage layers. Every failure is a field-tagged
// *domain.ValidationError so callers can map it to a specific form control.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"sealchat/internal/domain"
)

const (
	// MaxEmailLength follows RFC 5321's path limit.
	MaxEmailLength = 254

	// MaxContentLength caps any free-text input, counted in runes so
	// multi-byte text gets the same ceiling. Denial-of-service guard,
	// applied before validation and before encryption.
	MaxContentLength = 10000

	minUsernameLength = 3
	maxUsernameLength = 30

	minSecretLength = 12
)

var (
	emailRe    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
)

// Email checks address shape: bounded length, a standard grammar, no
// consecutive or edge dots in the local part, and a TLD of two or more
// characters.
func Email(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.NewValidationError("email", "email is required")
	}
	if len(s) > MaxEmailLength {
		return domain.NewValidationError("email", "email is too long")
	}
	local, _, found := strings.Cut(s, "@")
	if !found {
		return domain.NewValidationError("email", "email must contain @")
	}
	if strings.Contains(s, "..") {
		return domain.NewValidationError("email", "email must not contain consecutive dots")
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return domain.NewValidationError("email", "email must not start or end with a dot")
	}
	if !emailRe.MatchString(s) {
		return domain.NewValidationError("email", "email format is invalid")
	}
	return nil
}

// Username allows 3-30 characters from [A-Za-z0-9_-].
func Username(s string) error {
	if len(s) < minUsernameLength || len(s) > maxUsernameLength {
		return domain.NewValidationError("username", "username must be 3-30 characters")
	}
	if !usernameRe.MatchString(s) {
		return domain.NewValidationError("username", "username may only contain letters, digits, _ and -")
	}
	return nil
}

// MessageContent requires trimmed, non-empty text within the content cap.
func MessageContent(s string) error {
	if strings.TrimSpace(s) == "" {
		return domain.NewValidationError("content", "message cannot be empty")
	}
	if utf8.RuneCountInString(s) > MaxContentLength {
		return domain.NewValidationError("content", "message is too long")
	}
	return nil
}

// UUID requires canonical 8-4-4-4-12 form. fieldName tags the error so the
// same check serves user, conversation and message identifiers.
func UUID(s, fieldName string) error {
	if len(s) != 36 {
		return domain.NewValidationError(fieldName, "must be a canonical UUID")
	}
	if _, err := uuid.Parse(s); err != nil {
		return domain.NewValidationError(fieldName, "must be a canonical UUID")
	}
	return nil
}

// Secret enforces the key-derivation secret policy: minimum length with
// upper, lower, digit and symbol classes all present. Run before the
// expensive KDF so a rejected secret costs nothing.
func Secret(s string) error {
	if len(s) < minSecretLength {
		return domain.NewValidationError("secret", "secret must be at least 12 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return domain.NewValidationError("secret", "secret must include upper, lower, number and symbol")
	}
	return nil
}
