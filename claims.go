package contacts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind binds a token to the single operation it was issued for. A
// token of one kind is never accepted where another kind is expected.
type TokenKind string

const (
	// TokenKindAccess gates authenticated API calls.
	TokenKindAccess TokenKind = "access"
	// TokenKindEmailVerification confirms ownership of a signup email.
	TokenKindEmailVerification TokenKind = "email_verification"
	// TokenKindPasswordReset authorizes a password overwrite.
	TokenKindPasswordReset TokenKind = "password_reset"
)

// Valid reports whether k is one of the closed set of token kinds.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindAccess, TokenKindEmailVerification, TokenKindPasswordReset:
		return true
	}
	return false
}

func (k TokenKind) String() string {
	return string(k)
}

// AuthClaims is the validated view of a decoded token.
type AuthClaims interface {
	Subject() string
	TokenKind() TokenKind
	Expires() time.Time
	IssuedAtTime() time.Time
}

// TokenClaims is the concrete claim set: subject, expiry, and kind plus the
// registered issuer/audience claims.
type TokenClaims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"type,omitempty"`
}

var _ AuthClaims = (*TokenClaims)(nil)

// Subject returns the subject claim, the account email.
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// TokenKind returns the purpose the token was issued for.
func (c *TokenClaims) TokenKind() TokenKind {
	return c.Kind
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAtTime returns the issued at time
func (c *TokenClaims) IssuedAtTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
