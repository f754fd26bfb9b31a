package contacts

import (
	"context"
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Password   string `json:"password" example:"some_secret_word" doc:"Plaintext password, never stored."`
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, maxPasswordBytes)),
	)
}

// RegisterUserHandler creates the account in the pending state and sends
// the verification email. The email is dispatched after the transaction
// commits; a delivery failure never undoes the signup.
type RegisterUserHandler struct {
	repo    RepositoryManager
	tokens  TokenService
	mailer  Dispatcher
	baseURL string
	logger  Logger
}

func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService, mailer Dispatcher, baseURL string) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:    repo,
		tokens:  tokens,
		mailer:  mailer,
		baseURL: baseURL,
		logger:  defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	user := &User{}
	email := NormalizeEmail(event.Email)

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.repo.Users().GetByEmailTx(ctx, tx, email); err == nil && existing != nil {
			return goerrors.New("email already registered", goerrors.CategoryConflict).
				WithTextCode("EMAIL_TAKEN").
				WithCode(goerrors.CodeConflict).
				WithMetadata(map[string]any{"email": email})
		} else if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing account")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.Email = email
		user.PasswordHash = hash

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.sendVerificationEmail(ctx, user.Email)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *RegisterUserHandler) sendVerificationEmail(ctx context.Context, email string) {
	token, err := h.tokens.Issue(email, TokenKindEmailVerification)
	if err != nil {
		h.logger.Error("failed to issue verification token for %s: %v", email, err)
		return
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", h.baseURL, url.QueryEscape(token))
	if err := h.mailer.Send(ctx, VerificationEmail(email, link)); err != nil {
		h.logger.Error("failed to dispatch verification email to %s: %v", email, err)
	}
}
