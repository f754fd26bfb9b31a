package contacts

import (
	"context"
)

// Auther orchestrates login: credential verification, the confirmed-account
// gate, and access token issuance.
type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	logger       Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokenService TokenService) *Auther {
	return &Auther{
		provider:     provider,
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and returns a signed access token. Opts
// can stretch the token lifetime for remember-me sessions, bounded by the
// token service's configured maximum. Accounts that never confirmed their
// email are rejected with ErrAccountNotConfirmed rather than the generic
// credentials error.
func (s *Auther) Login(ctx context.Context, identifier, password string, opts ...IssueOption) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		return "", err
	}

	if identity == nil {
		s.logger.Error("Login identity is nil")
		return "", ErrInvalidCredentials
	}

	if !identity.Confirmed() {
		s.logger.Warn("Login blocked, account not confirmed: %s", identity.ID())
		return "", ErrAccountNotConfirmed
	}

	token, err := s.tokenService.Issue(identity.Email(), TokenKindAccess, opts...)
	if err != nil {
		s.logger.Error("Login token issue error: %v", err)
		return "", err
	}

	return token, nil
}

// SessionFromToken validates an access token and maps it to a session.
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Verify(raw, TokenKindAccess)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromTokenClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

// IdentityFromSession resolves the stored account behind a session.
func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier: %v", err)
		return nil, err
	}

	return identity, nil
}

var _ Authenticator = (*Auther)(nil)
