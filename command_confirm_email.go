package contacts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ConfirmEmailMessage struct {
	Token      string `json:"token" doc:"Email verification token from the signup email."`
	OnResponse func(resp *ConfirmEmailResponse)
}

func (e ConfirmEmailMessage) Type() string { return "user.confirm_email" }

type ConfirmEmailResponse struct {
	Email            string `json:"email"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
}

// ConfirmEmailHandler consumes an email_verification token and moves the
// account from pending to active. Confirming an already active account is
// an idempotent success, not an error.
type ConfirmEmailHandler struct {
	repo   RepositoryManager
	tokens TokenService
	sm     AccountStateMachine
	logger Logger
}

func NewConfirmEmailHandler(repo RepositoryManager, tokens TokenService) *ConfirmEmailHandler {
	return &ConfirmEmailHandler{
		repo:   repo,
		tokens: tokens,
		sm:     NewAccountStateMachine(repo.Users()),
		logger: defLogger{},
	}
}

func (h *ConfirmEmailHandler) WithLogger(logger Logger) *ConfirmEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmEmailHandler) WithStateMachine(sm AccountStateMachine) *ConfirmEmailHandler {
	if sm != nil {
		h.sm = sm
	}
	return h
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) error {
	claims, err := h.tokens.Verify(event.Token, TokenKindEmailVerification)
	if err != nil {
		return err
	}

	resp := &ConfirmEmailResponse{Email: claims.Subject()}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, claims.Subject())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation")
		}

		if user.Confirmed {
			resp.AlreadyConfirmed = true
			return nil
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		if _, err := h.sm.Transition(ctx, actor, user, AccountActive); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute email confirmation")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
