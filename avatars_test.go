package contacts_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gofiber/fiber/v2"
	contacts "github.com/goliatone/go-contacts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeAvatarStore records uploads and hands back a deterministic URL.
type fakeAvatarStore struct {
	userID      uuid.UUID
	contentType string
	body        []byte
	err         error
}

func (f *fakeAvatarStore) Upload(ctx context.Context, userID uuid.UUID, body io.Reader, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	f.userID = userID
	f.contentType = contentType
	f.body, _ = io.ReadAll(body)

	return "https://cdn.example.com/avatars/" + userID.String(), nil
}

func avatarRequest(t *testing.T, contentType string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="avatar.png"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)

	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPatch, "/auth/avatar", &buf)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return req
}

func TestAvatarEndpoint(t *testing.T) {
	owner := &contacts.User{ID: uuid.New(), Email: "user@example.com", Confirmed: true}

	t.Run("uploads and stores the url", func(t *testing.T) {
		f := newAPIFixture(t)
		store := &fakeAvatarStore{}
		f.controller.WithAvatarStore(store)

		avatarURL := "https://cdn.example.com/avatars/" + owner.ID.String()

		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)
		f.repo.users.On("UpdateAvatar", mock.Anything, owner.ID, avatarURL).
			Return(&contacts.User{ID: owner.ID, Email: owner.Email, Confirmed: true, Avatar: avatarURL}, nil)

		token, err := f.svc.Issue(owner.Email, contacts.TokenKindAccess)
		require.NoError(t, err)

		req := avatarRequest(t, "image/png")
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, owner.ID, store.userID)
		assert.Equal(t, "image/png", store.contentType)
		assert.Equal(t, "fake image bytes", string(store.body))

		body := decodeBody(t, resp)
		assert.Equal(t, avatarURL, body["avatar"])
	})

	t.Run("rejects non image uploads", func(t *testing.T) {
		f := newAPIFixture(t)
		store := &fakeAvatarStore{}
		f.controller.WithAvatarStore(store)

		f.repo.users.On("GetByEmail", mock.Anything, owner.Email).Return(owner, nil)

		token, err := f.svc.Issue(owner.Email, contacts.TokenKindAccess)
		require.NoError(t, err)

		req := avatarRequest(t, "application/pdf")
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

		resp, err := f.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, store.body)
	})

	t.Run("requires auth", func(t *testing.T) {
		f := newAPIFixture(t)
		f.controller.WithAvatarStore(&fakeAvatarStore{})

		resp, err := f.app.Test(avatarRequest(t, "image/png"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
