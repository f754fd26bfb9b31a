package contacts_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	contacts "github.com/goliatone/go-contacts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	app        *fiber.App
	repo       *MockRepositoryManager
	svc        contacts.TokenService
	mailer     *CaptureDispatcher
	controller *contacts.HTTPController
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &contacts.EnvConfig{
		SigningKey:            "test-signing-key",
		Issuer:                "test-issuer",
		Audience:              []string{"test:audience"},
		TokenExpiration:       15,
		ExtendedTokenDuration: int(7 * 24 * 60),
		BaseURL:               testBaseURL,
	}

	repo := NewMockRepositoryManager()
	svc := contacts.NewTokenServiceFromConfig(cfg)
	provider := contacts.NewUserProvider(repo.Users()).WithLogger(noopLogger{})
	auther := contacts.NewAuthenticator(provider, svc).WithLogger(noopLogger{})
	mailer := NewCaptureDispatcher()

	controller := contacts.NewHTTPController(
		cfg,
		auther,
		svc,
		repo,
		contacts.NewRegisterUserHandler(repo, svc, mailer, cfg.BaseURL).WithLogger(noopLogger{}),
		contacts.NewConfirmEmailHandler(repo, svc).WithLogger(noopLogger{}),
		contacts.NewInitializePasswordResetHandler(repo, svc, mailer, cfg.BaseURL).WithLogger(noopLogger{}),
		contacts.NewFinalizePasswordResetHandler(repo, svc).WithLogger(noopLogger{}),
	).WithLogger(noopLogger{})

	app := fiber.New()
	controller.RegisterRoutes(app)

	return &apiFixture{app: app, repo: repo, svc: svc, mailer: mailer, controller: controller}
}

func (f *apiFixture) postJSON(t *testing.T, path string, payload any, header ...string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), "body %q", raw)
	return out
}

func TestSignupEndpoint(t *testing.T) {
	t.Run("creates the account", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmailTx", mock.Anything, mock.Anything, "new@example.com").
			Return(nil, repository.NewRecordNotFound())
		f.repo.users.On("CreateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*contacts.User")).
			Return(&contacts.User{ID: uuid.New(), Email: "new@example.com"}, nil)

		resp := f.postJSON(t, "/auth/signup", map[string]string{
			"email":    "new@example.com",
			"password": "password123",
		})
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "new@example.com", body["email"])
		assert.NotContains(t, body, "password_hash")

		require.Len(t, f.mailer.Messages(), 1)
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmailTx", mock.Anything, mock.Anything, "taken@example.com").
			Return(&contacts.User{ID: uuid.New(), Email: "taken@example.com"}, nil)

		resp := f.postJSON(t, "/auth/signup", map[string]string{
			"email":    "taken@example.com",
			"password": "password123",
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid payload", func(t *testing.T) {
		f := newAPIFixture(t)

		resp := f.postJSON(t, "/auth/signup", map[string]string{
			"email":    "new@example.com",
			"password": "short",
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginEndpoint(t *testing.T) {
	password := "password123"

	t.Run("valid credentials return a bearer token", func(t *testing.T) {
		f := newAPIFixture(t)
		user := newStoredUser(t, "user@example.com", password)
		f.repo.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
		f.repo.users.On("TrackSuccessfulLogin", mock.Anything, user).Return(nil)

		resp := f.postJSON(t, "/auth/login", map[string]any{
			"identifier": "user@example.com",
			"password":   password,
		})
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "bearer", body["token_type"])

		claims, err := f.svc.Verify(body["access_token"].(string), contacts.TokenKindAccess)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", claims.Subject())
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAPIFixture(t)
		user := newStoredUser(t, "user@example.com", password)
		f.repo.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
		f.repo.users.On("TrackAttemptedLogin", mock.Anything, user).Return(nil)

		resp := f.postJSON(t, "/auth/login", map[string]any{
			"identifier": "user@example.com",
			"password":   "wrong-password",
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unconfirmed account", func(t *testing.T) {
		f := newAPIFixture(t)
		user := newStoredUser(t, "pending@example.com", password)
		user.Confirmed = false
		f.repo.users.On("GetByEmail", mock.Anything, "pending@example.com").Return(user, nil)
		f.repo.users.On("TrackSuccessfulLogin", mock.Anything, user).Return(nil)

		resp := f.postJSON(t, "/auth/login", map[string]any{
			"identifier": "pending@example.com",
			"password":   password,
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestVerifyEndpoint(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		f := newAPIFixture(t)
		user := &contacts.User{ID: uuid.New(), Email: "pending@example.com"}
		f.repo.users.On("GetByEmailTx", mock.Anything, mock.Anything, "pending@example.com").
			Return(user, nil)
		f.repo.users.On("ConfirmEmail", mock.Anything, user.ID).
			Return(&contacts.User{ID: user.ID, Email: user.Email, Confirmed: true}, nil)

		token, err := f.svc.Issue("pending@example.com", contacts.TokenKindEmailVerification)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/auth/verify?token="+token, nil)
		resp, err := f.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "pending@example.com", body["email"])
		assert.Equal(t, false, body["already_confirmed"])
	})

	t.Run("missing token", func(t *testing.T) {
		f := newAPIFixture(t)

		resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/auth/verify", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("reset token rejected", func(t *testing.T) {
		f := newAPIFixture(t)

		token, err := f.svc.Issue("pending@example.com", contacts.TokenKindPasswordReset)
		require.NoError(t, err)

		resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/auth/verify?token="+token, nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestMeEndpoint(t *testing.T) {
	t.Run("returns the account behind the token", func(t *testing.T) {
		f := newAPIFixture(t)
		user := &contacts.User{ID: uuid.New(), Email: "user@example.com", Confirmed: true}
		f.repo.users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

		token, err := f.svc.Issue(user.Email, contacts.TokenKindAccess)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, user.Email, body["email"])
		assert.Equal(t, user.ID.String(), body["id"])
		assert.NotContains(t, body, "password_hash")
	})

	t.Run("requires a token", func(t *testing.T) {
		f := newAPIFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		resp, err := f.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("ghost subject", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmail", mock.Anything, "ghost@example.com").
			Return(nil, repository.NewRecordNotFound())

		token, err := f.svc.Issue("ghost@example.com", contacts.TokenKindAccess)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPasswordResetEndpoints(t *testing.T) {
	t.Run("initialize always accepts", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmail", mock.Anything, "ghost@example.com").
			Return(nil, repository.NewRecordNotFound())

		resp := f.postJSON(t, "/auth/password-reset", map[string]string{"email": "ghost@example.com"})
		defer resp.Body.Close()

		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["accepted"])
		assert.Empty(t, f.mailer.Messages())
	})

	t.Run("confirm overwrites the password", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("ResetPasswordTx", mock.Anything, mock.Anything, "user@example.com", mock.AnythingOfType("string")).
			Return(nil)

		token, err := f.svc.Issue("user@example.com", contacts.TokenKindPasswordReset)
		require.NoError(t, err)

		resp := f.postJSON(t, "/auth/password-reset/confirm", map[string]string{
			"token":    token,
			"password": "brand-new-password",
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestContactEndpoints(t *testing.T) {
	owner := &contacts.User{ID: uuid.New(), Email: "user@example.com", Confirmed: true}

	authed := func(t *testing.T, f *apiFixture, req *http.Request) *http.Response {
		t.Helper()

		token, err := f.svc.Issue(owner.Email, contacts.TokenKindAccess)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("create normalizes phone and email", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)

		var created *contacts.Contact
		f.repo.book.On("Create", mock.Anything, mock.AnythingOfType("*contacts.Contact")).
			Run(func(args mock.Arguments) {
				created = args.Get(1).(*contacts.Contact)
			}).
			Return(&contacts.Contact{ID: uuid.New()}, nil)

		body, err := json.Marshal(map[string]string{
			"first_name":   "Pepe",
			"last_name":    "Rone",
			"email":        "Pepe.Rone@Example.com",
			"phone_number": "(212) 555-0175",
			"birthday":     "1990-06-15",
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/contacts/", bytes.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		resp := authed(t, f, req)
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NotNil(t, created)
		assert.Equal(t, "pepe.rone@example.com", created.Email)
		assert.Equal(t, "+12125550175", created.Phone)
		assert.Equal(t, owner.ID, created.UserID)
		require.NotNil(t, created.Birthday)
	})

	t.Run("create rejects bad payloads", func(t *testing.T) {
		tests := []struct {
			name    string
			payload map[string]string
		}{
			{"missing first name", map[string]string{"last_name": "Rone"}},
			{"invalid email", map[string]string{"first_name": "Pepe", "email": "nope"}},
			{"invalid phone", map[string]string{"first_name": "Pepe", "phone_number": "123"}},
			{"invalid birthday", map[string]string{"first_name": "Pepe", "birthday": "June 15"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newAPIFixture(t)
				f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)

				body, err := json.Marshal(tt.payload)
				require.NoError(t, err)

				req := httptest.NewRequest(http.MethodPost, "/contacts/", bytes.NewReader(body))
				req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

				resp := authed(t, f, req)
				defer resp.Body.Close()

				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		}
	})

	t.Run("list is scoped to the owner", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)
		f.repo.book.On("ListByOwner", mock.Anything, owner.ID, contacts.ContactFilter{Query: "pepe", Limit: 10, Offset: 0}).
			Return([]*contacts.Contact{{ID: uuid.New(), FirstName: "Pepe"}}, nil)

		req := httptest.NewRequest(http.MethodGet, "/contacts/?q=pepe&limit=10", nil)

		resp := authed(t, f, req)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("get missing contact", func(t *testing.T) {
		f := newAPIFixture(t)
		id := uuid.New()
		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)
		f.repo.book.On("GetOwned", mock.Anything, owner.ID, id).
			Return(nil, repository.NewRecordNotFound())

		req := httptest.NewRequest(http.MethodGet, "/contacts/"+id.String(), nil)

		resp := authed(t, f, req)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		f := newAPIFixture(t)
		id := uuid.New()
		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)
		f.repo.book.On("DeleteOwned", mock.Anything, owner.ID, id).Return(nil)

		req := httptest.NewRequest(http.MethodDelete, "/contacts/"+id.String(), nil)

		resp := authed(t, f, req)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("birthdays window", func(t *testing.T) {
		f := newAPIFixture(t)
		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)
		f.repo.book.On("UpcomingBirthdays", mock.Anything, owner.ID, 14).
			Return([]*contacts.Contact{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/contacts/birthdays?days=14", nil)

		resp := authed(t, f, req)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("requires a token", func(t *testing.T) {
		f := newAPIFixture(t)

		resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/contacts/", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
