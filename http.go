package contacts

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// SessionContextKey is where the auth middleware stores validated claims.
const SessionContextKey = "auth_session"

// RequireAuth validates the bearer token as an access token and stores the
// claims on the request context. Tokens of any other kind are rejected.
func RequireAuth(tokens TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := tokenFromHeader(c)
		if raw == "" {
			return RenderError(c, goerrors.New("missing bearer token", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(goerrors.CodeUnauthorized))
		}

		claims, err := tokens.Verify(raw, TokenKindAccess)
		if err != nil {
			return RenderError(c, err)
		}

		c.Locals(SessionContextKey, claims)

		return c.Next()
	}
}

// ClaimsFromContext returns the validated access claims set by RequireAuth.
func ClaimsFromContext(c *fiber.Ctx) (*TokenClaims, error) {
	raw := c.Locals(SessionContextKey)
	if raw == nil {
		return nil, goerrors.New("unable to find session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := raw.(*TokenClaims)
	if !ok || claims == nil {
		return nil, goerrors.New("unable to decode session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}

func tokenFromHeader(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// RenderError maps the rich error taxonomy onto HTTP responses. The
// message and text code go to the client; wrapped internals do not.
func RenderError(c *fiber.Ctx, err error) error {
	status := statusFromError(err)

	body := fiber.Map{"detail": errorMessage(err)}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		body["code"] = rich.TextCode
	}

	return c.Status(status).JSON(body)
}

func statusFromError(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return fiber.StatusInternalServerError
	}

	// not confirmed is an auth category error that should read as forbidden
	if rich.TextCode == TextCodeAccountNotConfirmed {
		return fiber.StatusForbidden
	}

	switch rich.Category {
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		return rich.Message
	}
	return "internal server error"
}
