package accounts

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt accepts, in bytes.
const MaxPasswordBytes = 72

var (
	passwordUpperRx   = regexp.MustCompile(`[A-Z]`)
	passwordDigitRx   = regexp.MustCompile(`\d`)
	passwordSpecialRx = regexp.MustCompile(`[@$!%*?&#]`)
	emailShapeRx      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// passwordRules is the ozzo rule set applied to new passwords.
func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(MinPasswordLength, 0),
		validation.By(maxPasswordBytes),
		validation.Match(passwordUpperRx).Error("must contain an upper-case letter"),
		validation.Match(passwordDigitRx).Error("must contain a digit"),
		validation.Match(passwordSpecialRx).Error("must contain one of @$!%*?&#"),
	}
}

// maxPasswordBytes counts bytes, not runes: bcrypt truncates on bytes.
func maxPasswordBytes(value interface{}) error {
	pw, _ := value.(string)
	if len(pw) > MaxPasswordBytes {
		return errors.New("must be at most 72 bytes long")
	}
	return nil
}

// EmailRule checks the shape of an email address. It never resolves the
// domain.
func EmailRule() validation.Rule {
	return validation.Match(emailShapeRx).Error("must be a valid email address")
}

// ValidatePassword checks a plaintext password against the password policy.
func ValidatePassword(password string) error {
	if err := validation.Validate(password, passwordRules()...); err != nil {
		return validationError("password "+err.Error(), map[string]any{"password": err.Error()})
	}
	return nil
}
