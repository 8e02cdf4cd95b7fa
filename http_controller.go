package vault

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// AuthController exposes the master password exchange and the session
// endpoints as JSON handlers.
type AuthController struct {
	Logger Logger
	Auther *Auther
}

type AuthControllerOption func(*AuthController) *AuthController

func WithAuthLogger(logger Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		if logger != nil {
			a.Logger = logger
		}
		return a
	}
}

func NewAuthController(auther *Auther, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Auther: auther,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// MasterPasswordRequest payload
type MasterPasswordRequest struct {
	DerivedHash string `json:"derivedHash"`
	InviteCode  string `json:"inviteCode"`
	Salt        string `json:"salt"`
}

// Validate will run validation rules
func (r MasterPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.DerivedHash,
			validation.Required.Error("Missing derived hash or invite code"),
		),
		validation.Field(
			&r.InviteCode,
			validation.Required.Error("Missing derived hash or invite code"),
		),
	)
}

// MasterPassword is the single entry point for login and first-time
// provisioning alike.
func (a *AuthController) MasterPassword(c *fiber.Ctx) error {
	payload := new(MasterPasswordRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("master password parse payload: %v", err)
		return writeValidationError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	result, err := a.Auther.AuthenticateOrProvision(
		c.Context(),
		payload.DerivedHash,
		payload.InviteCode,
		payload.Salt,
		c.IP(),
	)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	body := fiber.Map{
		"success": true,
		"token":   result.Token,
	}
	if !result.Provisioned {
		body["user"] = result.User
	}

	return c.JSON(body)
}

// Salt hands a fresh random salt to clients preparing a provisioning
// request.
func (a *AuthController) Salt(c *fiber.Ctx) error {
	salt, err := GenerateSalt()
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"salt":    salt,
	})
}

// VerifyToken checks the bearer token in the Authorization header and
// echoes back the session identity.
func (a *AuthController) VerifyToken(c *fiber.Ctx) error {
	raw := bearerToken(c)
	if raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Missing token",
		})
	}

	claims, err := a.Auther.VerifyToken(raw, c.IP())
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"user_id":  claims.UserID,
		"username": claims.Username,
	})
}

// ChangePasswordRequest payload
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Validate will run validation rules
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required.Error("Missing required fields")),
		validation.Field(&r.NewPassword, validation.Required.Error("Missing required fields")),
	)
}

// ChangePassword rotates the master credential for the session user.
func (a *AuthController) ChangePassword(c *fiber.Ctx) error {
	session := SessionFromContext(c)
	if session == nil {
		return writeError(c, a.Logger, errors.New("no session in request", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized))
	}

	payload := new(ChangePasswordRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("change password parse payload: %v", err)
		return writeValidationError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	if err := a.Auther.ChangePassword(c.Context(), session.UserID, payload.OldPassword, payload.NewPassword); err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func bearerToken(c *fiber.Ctx) string {
	raw := c.Get(fiber.HeaderAuthorization)
	if len(raw) > 7 && raw[:7] == "Bearer " {
		return raw[7:]
	}
	return raw
}
