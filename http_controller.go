package contacts

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// defaultPhoneRegion is assumed for phone numbers without a country prefix.
const defaultPhoneRegion = "US"

const birthdayLayout = "2006-01-02"

// HTTPController exposes the auth and contact book operations as a JSON
// API. Every /contacts route and the avatar route require a bearer access
// token; the auth routes are rate limited.
type HTTPController struct {
	cfg        Config
	auther     Authenticator
	tokens     TokenService
	repo       RepositoryManager
	register   *RegisterUserHandler
	confirm    *ConfirmEmailHandler
	resetInit  *InitializePasswordResetHandler
	resetFinal *FinalizePasswordResetHandler
	avatars    AvatarStore
	logger     Logger
}

func NewHTTPController(
	cfg Config,
	auther Authenticator,
	tokens TokenService,
	repo RepositoryManager,
	register *RegisterUserHandler,
	confirm *ConfirmEmailHandler,
	resetInit *InitializePasswordResetHandler,
	resetFinal *FinalizePasswordResetHandler,
) *HTTPController {
	return &HTTPController{
		cfg:        cfg,
		auther:     auther,
		tokens:     tokens,
		repo:       repo,
		register:   register,
		confirm:    confirm,
		resetInit:  resetInit,
		resetFinal: resetFinal,
		logger:     defLogger{},
	}
}

func (h *HTTPController) WithAvatarStore(store AvatarStore) *HTTPController {
	h.avatars = store
	return h
}

func (h *HTTPController) WithLogger(logger Logger) *HTTPController {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// RegisterRoutes mounts the API on the given app.
func (h *HTTPController) RegisterRoutes(app *fiber.App) {
	authLimiter := limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	})

	auth := app.Group("/auth", authLimiter)
	auth.Post("/signup", h.Signup)
	auth.Post("/login", h.Login)
	auth.Get("/verify", h.VerifyEmail)
	auth.Post("/password-reset", h.PasswordResetInitialize)
	auth.Post("/password-reset/confirm", h.PasswordResetFinalize)
	auth.Get("/me", RequireAuth(h.tokens), h.Me)
	auth.Patch("/avatar", RequireAuth(h.tokens), h.UpdateAvatar)

	book := app.Group("/contacts", RequireAuth(h.tokens))
	book.Get("/", h.ListContacts)
	book.Post("/", h.CreateContact)
	book.Get("/birthdays", h.UpcomingBirthdays)
	book.Get("/:id", h.GetContact)
	book.Put("/:id", h.UpdateContact)
	book.Delete("/:id", h.DeleteContact)
}

func (h *HTTPController) Signup(c *fiber.Ctx) error {
	msg := RegisterUserMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}

	var user *User
	msg.OnResponse = func(u *User) { user = u }

	if err := h.register.Execute(c.UserContext(), msg); err != nil {
		return RenderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

type loginRequest struct {
	Identifier      string `json:"identifier"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ExtendedSession bool   `json:"extended_session"`
}

func (p loginRequest) GetIdentifier() string {
	if p.Identifier != "" {
		return p.Identifier
	}
	return p.Email
}

func (p loginRequest) GetPassword() string { return p.Password }

func (p loginRequest) GetExtendedSession() bool { return p.ExtendedSession }

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *HTTPController) Login(c *fiber.Ctx) error {
	payload := loginRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}

	var opts []IssueOption
	if payload.GetExtendedSession() && h.cfg.GetExtendedTokenDuration() > 0 {
		opts = append(opts, WithTokenTTL(time.Duration(h.cfg.GetExtendedTokenDuration())*time.Minute))
	}

	token, err := h.auther.Login(c.UserContext(), payload.GetIdentifier(), payload.GetPassword(), opts...)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(loginResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *HTTPController) VerifyEmail(c *fiber.Ctx) error {
	msg := ConfirmEmailMessage{Token: c.Query("token")}
	if msg.Token == "" {
		return RenderError(c, goerrors.New("missing token parameter", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	var resp *ConfirmEmailResponse
	msg.OnResponse = func(r *ConfirmEmailResponse) { resp = r }

	if err := h.confirm.Execute(c.UserContext(), msg); err != nil {
		return RenderError(c, err)
	}

	return c.JSON(resp)
}

// Me returns the account behind the presented access token.
func (h *HTTPController) Me(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(user)
}

func (h *HTTPController) PasswordResetInitialize(c *fiber.Ctx) error {
	msg := InitializePasswordResetMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}

	var resp *InitializePasswordResetResponse
	msg.OnResponse = func(r *InitializePasswordResetResponse) { resp = r }

	if err := h.resetInit.Execute(c.UserContext(), msg); err != nil {
		return RenderError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (h *HTTPController) PasswordResetFinalize(c *fiber.Ctx) error {
	msg := FinalizePasswordResetMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := h.resetFinal.Execute(c.UserContext(), msg); err != nil {
		return RenderError(c, err)
	}

	return c.JSON(fiber.Map{"detail": "password updated"})
}

func (h *HTTPController) UpdateAvatar(c *fiber.Ctx) error {
	if h.avatars == nil {
		return RenderError(c, goerrors.New("avatar storage not configured", goerrors.CategoryOperation).
			WithCode(goerrors.CodeInternal))
	}

	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "missing file upload").
			WithCode(goerrors.CodeBadRequest))
	}

	contentType := header.Header.Get(fiber.HeaderContentType)
	if !strings.HasPrefix(contentType, "image/") {
		return RenderError(c, goerrors.New("avatar must be an image", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	file, err := header.Open()
	if err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to read upload").
			WithCode(goerrors.CodeBadRequest))
	}
	defer file.Close()

	url, err := h.avatars.Upload(c.UserContext(), user.ID, file, contentType)
	if err != nil {
		return RenderError(c, err)
	}

	updated, err := h.repo.Users().UpdateAvatar(c.UserContext(), user.ID, url)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(updated)
}

// ContactPayload is the request shape for creating and updating contacts.
// Phone numbers are normalized to E.164, birthdays use YYYY-MM-DD.
type ContactPayload struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone_number"`
	Birthday       string `json:"birthday"`
	AdditionalInfo string `json:"additional_info"`
}

func (p ContactPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 120)),
		validation.Field(&p.LastName, validation.Length(0, 120)),
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.Birthday, validation.Date(birthdayLayout)),
	)
}

func (p ContactPayload) toContact(ownerID uuid.UUID) (*Contact, error) {
	if err := p.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid contact").
			WithCode(goerrors.CodeBadRequest)
	}

	record := &Contact{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          NormalizeEmail(p.Email),
		AdditionalInfo: p.AdditionalInfo,
		UserID:         ownerID,
	}

	if p.Phone != "" {
		phone, err := normalizePhone(p.Phone)
		if err != nil {
			return nil, err
		}
		record.Phone = phone
	}

	if p.Birthday != "" {
		day, err := time.Parse(birthdayLayout, p.Birthday)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid birthday").
				WithCode(goerrors.CodeBadRequest)
		}
		record.Birthday = &day
	}

	return record, nil
}

func normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (h *HTTPController) ListContacts(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	filter := ContactFilter{
		Query:  c.Query("q"),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}

	records, err := h.repo.Contacts().ListByOwner(c.UserContext(), user.ID, filter)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(fiber.Map{"items": records, "count": len(records)})
}

func (h *HTTPController) CreateContact(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	payload := ContactPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}

	record, err := payload.toContact(user.ID)
	if err != nil {
		return RenderError(c, err)
	}

	created, err := h.repo.Contacts().Create(c.UserContext(), record)
	if err != nil {
		return RenderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *HTTPController) GetContact(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	id, err := contactID(c)
	if err != nil {
		return RenderError(c, err)
	}

	record, err := h.repo.Contacts().GetOwned(c.UserContext(), user.ID, id)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(record)
}

func (h *HTTPController) UpdateContact(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	id, err := contactID(c)
	if err != nil {
		return RenderError(c, err)
	}

	payload := ContactPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return RenderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}

	record, err := payload.toContact(user.ID)
	if err != nil {
		return RenderError(c, err)
	}
	record.ID = id

	updated, err := h.repo.Contacts().UpdateOwned(c.UserContext(), user.ID, record)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(updated)
}

func (h *HTTPController) DeleteContact(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	id, err := contactID(c)
	if err != nil {
		return RenderError(c, err)
	}

	if err := h.repo.Contacts().DeleteOwned(c.UserContext(), user.ID, id); err != nil {
		return RenderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) UpcomingBirthdays(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return RenderError(c, err)
	}

	days := c.QueryInt("days", 7)
	if days < 1 || days > 366 {
		return RenderError(c, goerrors.New("days must be between 1 and 366", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	records, err := h.repo.Contacts().UpcomingBirthdays(c.UserContext(), user.ID, days)
	if err != nil {
		return RenderError(c, err)
	}

	return c.JSON(fiber.Map{"items": records, "count": len(records)})
}

func (h *HTTPController) currentUser(c *fiber.Ctx) (*User, error) {
	claims, err := ClaimsFromContext(c)
	if err != nil {
		return nil, err
	}

	user, err := h.repo.Users().GetByEmail(c.UserContext(), claims.Subject())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound.Clone()
		}
		return nil, err
	}

	return user, nil
}

func contactID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid contact id").
			WithCode(goerrors.CodeBadRequest)
	}
	return id, nil
}
