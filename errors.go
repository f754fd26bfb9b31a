package contacts

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCredentials covers both unknown accounts and bad
	// passwords so callers cannot enumerate registered emails.
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"

	TextCodeAccountNotConfirmed = "ACCOUNT_NOT_CONFIRMED"
	TextCodeTokenMalformed      = "MALFORMED_TOKEN"
	TextCodeSignatureMismatch   = "SIGNATURE_MISMATCH"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeWrongTokenKind      = "WRONG_TOKEN_KIND"
	TextCodeTooManyAttempts     = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeIdentityNotFound    = "IDENTITY_NOT_FOUND"
)

// ErrInvalidCredentials is returned on any failed password verification.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotConfirmed rejects logins for accounts that never confirmed
// their email. Deliberately distinct from ErrInvalidCredentials; the
// trade-off of exposing account existence here is inherited from the
// original flow.
var ErrAccountNotConfirmed = goerrors.New("account email is not confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotConfirmed).
	WithCode(goerrors.CodeForbidden)

// ErrTokenMalformed is returned when a token string is structurally invalid.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrSignatureMismatch is returned when the integrity check fails: wrong
// secret, tampered payload, or an unexpected signing algorithm.
var ErrSignatureMismatch = goerrors.New("token signature mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignatureMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when the embedded expiry is in the past.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrWrongTokenKind rejects a valid, unexpired token presented to an
// operation it was not issued for.
var ErrWrongTokenKind = goerrors.New("token kind does not match expected kind", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongTokenKind).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts enforces the login cool down window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation)

// ErrPasswordTooLong rejects passwords beyond the 72 byte bcrypt input bound.
var ErrPasswordTooLong = goerrors.New("password exceeds maximum length", goerrors.CategoryValidation)

// ErrMismatchedHashAndPassword is returned when a password does not match
// its stored digest, including malformed digests.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for structurally invalid tokens
func IsMalformedError(err error) bool {
	return HasTextCode(err, TextCodeTokenMalformed)
}

// IsWrongKindError will check for purpose-binding failures
func IsWrongKindError(err error) bool {
	return HasTextCode(err, TextCodeWrongTokenKind)
}
