package accounts

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation        = "VALIDATION_FAILED"
	TextCodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeIdentityNotFound  = "IDENTITY_NOT_FOUND"
	TextCodeAlreadyActivated  = "ALREADY_ACTIVATED"
	TextCodeConfiguration     = "CONFIGURATION_ERROR"
	TextCodeStoreFailure      = "STORE_FAILURE"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeForbidden         = "FORBIDDEN"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
)

// ErrValidation is returned for missing or malformed input.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateIdentity is returned when the email or username is taken.
var ErrDuplicateIdentity = goerrors.New("identity already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeConflict)

// ErrUnauthenticated is the uniform answer for bad credentials and for
// invalid or expired tokens. It never says which part failed.
var ErrUnauthenticated = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAlreadyActivated is returned by Resend for verified accounts.
var ErrAlreadyActivated = goerrors.New("account already activated", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyActivated).
	WithCode(goerrors.CodeConflict)

// ErrConfiguration is a startup time error for missing or malformed settings.
var ErrConfiguration = goerrors.New("invalid configuration", goerrors.CategoryInternal).
	WithTextCode(TextCodeConfiguration).
	WithCode(goerrors.CodeInternal)

// ErrMalformedToken is returned when a token cannot be parsed at all.
var ErrMalformedToken = goerrors.New("token is malformed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeBadRequest)

// ErrForbidden is returned when the policy denies an action.
var ErrForbidden = goerrors.New("action not allowed", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// withMetadata clones the sentinel so shared values are never mutated.
func withMetadata(sentinel *goerrors.Error, meta map[string]any) *goerrors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	if len(meta) == 0 {
		return clone
	}
	return clone.WithMetadata(meta)
}

func validationError(reason string, meta map[string]any) error {
	clone := ErrValidation.Clone()
	if clone == nil {
		return ErrValidation
	}
	clone.Message = reason
	clone.Source = ErrValidation
	if len(meta) > 0 {
		clone = clone.WithMetadata(meta)
	}
	return clone
}

// fromValidation maps ozzo field errors into ErrValidation with one
// metadata entry per failing field.
func fromValidation(err error) error {
	if err == nil {
		return nil
	}

	var fields validation.Errors
	if errors.As(err, &fields) {
		meta := make(map[string]any, len(fields))
		for name, ferr := range fields {
			if ferr != nil {
				meta[name] = ferr.Error()
			}
		}
		return validationError(err.Error(), meta)
	}

	return validationError(err.Error(), nil)
}

func wrapStoreFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeStoreFailure).
		WithCode(goerrors.CodeInternal)
}

func hasTextCode(err error, code string) bool {
	for err != nil {
		var rich *goerrors.Error
		if errors.As(err, &rich) {
			if rich.TextCode == code {
				return true
			}
			if rich.Source == nil {
				return false
			}
			err = rich.Source
			continue
		}
		return false
	}
	return false
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return hasTextCode(err, TextCodeValidation) }

// IsDuplicateError reports whether err is a uniqueness conflict.
func IsDuplicateError(err error) bool { return hasTextCode(err, TextCodeDuplicateIdentity) }

// IsUnauthenticated reports whether err means "invalid credentials or token".
func IsUnauthenticated(err error) bool { return hasTextCode(err, TextCodeInvalidCreds) }

// IsNotFound reports whether err signals a missing identity.
func IsNotFound(err error) bool { return hasTextCode(err, TextCodeIdentityNotFound) }

// IsAlreadyActivated reports whether err is the resend conflict.
func IsAlreadyActivated(err error) bool { return hasTextCode(err, TextCodeAlreadyActivated) }

// IsConfigurationError reports whether err is a startup configuration error.
func IsConfigurationError(err error) bool { return hasTextCode(err, TextCodeConfiguration) }

// IsStoreFailure reports whether err is an opaque persistence fault.
func IsStoreFailure(err error) bool { return hasTextCode(err, TextCodeStoreFailure) }

// IsForbidden reports whether err is a policy denial.
func IsForbidden(err error) bool { return hasTextCode(err, TextCodeForbidden) }

// IsMalformedToken reports whether err means the token could not be parsed.
func IsMalformedToken(err error) bool { return hasTextCode(err, TextCodeTokenMalformed) }

// isUniqueViolation recognises unique constraint failures from the SQL
// drivers we ship with (sqlite, postgres).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if isSQLiteUniqueViolation(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
