package contacts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Default lifetimes per token kind. Access tokens are short lived and
// tunable per login; the emailed link tokens last a day.
const (
	DefaultAccessTokenTTL       = 15 * time.Minute
	DefaultExtendedAccessTTL    = 30 * 24 * time.Hour
	DefaultEmailVerificationTTL = 24 * time.Hour
	DefaultPasswordResetTTL     = 24 * time.Hour
)

// TokenService issues and verifies the signed purpose-bound tokens that
// gate account access, email confirmation, and password recovery.
type TokenService interface {
	Issue(subject string, kind TokenKind, opts ...IssueOption) (string, error)
	Decode(tokenString string) (*TokenClaims, error)
	Verify(tokenString string, expected TokenKind) (*TokenClaims, error)
}

// IssueOption overrides issuance defaults for a single token.
type IssueOption func(*issueOptions)

type issueOptions struct {
	ttl time.Duration
}

// WithTokenTTL overrides the kind default lifetime. Access durations are
// clamped to the configured extended maximum.
func WithTokenTTL(d time.Duration) IssueOption {
	return func(o *issueOptions) {
		o.ttl = d
	}
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	issuer          string
	audience        jwt.ClaimStrings
	accessTTL       time.Duration
	maxAccessTTL    time.Duration
	verificationTTL time.Duration
	resetTTL        time.Duration
	logger          Logger
	now             func() time.Time
}

type TokenServiceOption func(*TokenServiceImpl)

// WithTokenLogger overrides the logger used by the token service.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithAccessTokenTTL sets the default access token lifetime.
func WithAccessTokenTTL(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if d > 0 {
			ts.accessTTL = d
		}
	}
}

// WithMaxAccessTokenTTL caps caller supplied access lifetimes.
func WithMaxAccessTokenTTL(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if d > 0 {
			ts.maxAccessTTL = d
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, audience []string, opts ...TokenServiceOption) TokenService {
	ts := &TokenServiceImpl{
		signingKey:      signingKey,
		issuer:          issuer,
		audience:        jwt.ClaimStrings(audience),
		accessTTL:       DefaultAccessTokenTTL,
		maxAccessTTL:    DefaultExtendedAccessTTL,
		verificationTTL: DefaultEmailVerificationTTL,
		resetTTL:        DefaultPasswordResetTTL,
		logger:          defLogger{},
		now:             time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// NewTokenServiceFromConfig builds a TokenService from the auth Config.
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) TokenService {
	base := []TokenServiceOption{}
	if cfg.GetTokenExpiration() > 0 {
		base = append(base, WithAccessTokenTTL(time.Duration(cfg.GetTokenExpiration())*time.Minute))
	}
	if cfg.GetExtendedTokenDuration() > 0 {
		base = append(base, WithMaxAccessTokenTTL(time.Duration(cfg.GetExtendedTokenDuration())*time.Minute))
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), cfg.GetAudience(), append(base, opts...)...)
}

// Issue creates a signed token for the subject, bound to the given kind.
// Tokens for the same subject and kind issued at different instants always
// differ: expiry moves and each token carries a fresh jti.
func (ts *TokenServiceImpl) Issue(subject string, kind TokenKind, opts ...IssueOption) (string, error) {
	if !kind.Valid() {
		return "", errors.New("unknown token kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": kind.String()})
	}

	if subject == "" {
		return "", errors.New("token subject must not be empty", errors.CategoryBadInput)
	}

	options := &issueOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	ttl := ts.kindTTL(kind)
	if options.ttl > 0 {
		ttl = options.ttl
		if kind == TokenKindAccess && ts.maxAccessTTL > 0 && ttl > ts.maxAccessTTL {
			ttl = ts.maxAccessTTL
		}
	}

	now := ts.now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  ts.audienceCopy(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *TokenClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

// Decode parses and validates a token string, returning structured claims.
// Tokens signed with a different algorithm than configured are rejected as
// a signature mismatch, never silently accepted.
func (ts *TokenServiceImpl) Decode(tokenString string) (*TokenClaims, error) {
	parserOptions := []jwt.ParserOption{jwt.WithTimeFunc(ts.now)}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService decode encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, ErrSignatureMismatch
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureMismatch
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrSignatureMismatch
		default:
			return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode)
		}
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService decode could not map claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Verify decodes the token and then enforces purpose binding: the claim
// kind must match the expected kind. Decode failures surface unchanged.
func (ts *TokenServiceImpl) Verify(tokenString string, expected TokenKind) (*TokenClaims, error) {
	if !expected.Valid() {
		return nil, errors.New("unknown expected token kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": expected.String()})
	}

	claims, err := ts.Decode(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Kind != expected {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}

func (ts *TokenServiceImpl) kindTTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenKindEmailVerification:
		return ts.verificationTTL
	case TokenKindPasswordReset:
		return ts.resetTTL
	default:
		return ts.accessTTL
	}
}

func (ts *TokenServiceImpl) audienceCopy() jwt.ClaimStrings {
	if len(ts.audience) == 0 {
		return nil
	}
	aud := make(jwt.ClaimStrings, len(ts.audience))
	copy(aud, ts.audience)
	return aud
}
