package contacts

import (
	"context"
	"fmt"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Accepted bool `json:"accepted"`
}

// InitializePasswordResetHandler issues a password_reset token and mails
// it. The response is identical whether or not the email belongs to an
// account, so the endpoint cannot be used to enumerate users.
type InitializePasswordResetHandler struct {
	repo    RepositoryManager
	tokens  TokenService
	mailer  Dispatcher
	baseURL string
	logger  Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, tokens TokenService, mailer Dispatcher, baseURL string) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:    repo,
		tokens:  tokens,
		mailer:  mailer,
		baseURL: baseURL,
		logger:  defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Accepted: true}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// same response as the found case on purpose
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.tokens.Issue(user.Email, TokenKindPasswordReset)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue password reset token")
	}

	link := fmt.Sprintf("%s/password-reset?token=%s", h.baseURL, url.QueryEscape(token))
	if err := h.mailer.Send(ctx, PasswordResetEmail(user.Email, link)); err != nil {
		h.logger.Error("failed to dispatch password reset email to %s: %v", user.Email, err)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
