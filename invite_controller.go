package vault

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// InviteController manages the invite code ledger. All of its routes sit
// behind the session middleware.
type InviteController struct {
	Logger Logger
	Repo   RepositoryManager
}

type InviteControllerOption func(*InviteController) *InviteController

func WithInviteLogger(logger Logger) InviteControllerOption {
	return func(a *InviteController) *InviteController {
		if logger != nil {
			a.Logger = logger
		}
		return a
	}
}

func NewInviteController(repo RepositoryManager, opts ...InviteControllerOption) *InviteController {
	c := &InviteController{
		Logger: defLogger{},
		Repo:   repo,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in invite controller...")
	}

	return c
}

// CreateInvitePayload carries the optional explicit code and expiry.
type CreateInvitePayload struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expiresAt"`
}

// Validate will run validation rules
func (r CreateInvitePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Length(1, 64)),
		validation.Field(&r.ExpiresAt, validation.By(validateExpiresAt)),
	)
}

func (a *InviteController) Create(c *fiber.Ctx) error {
	payload := new(CreateInvitePayload)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			a.Logger.Error("create invite parse payload: %v", err)
			return writeValidationError(c, err)
		}
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	expiresAt, err := parseExpiresAt(payload.ExpiresAt)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	code, err := a.Repo.Invites().Generate(c.Context(), payload.Code, expiresAt)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	a.Logger.Info("invite code created: %s", code)

	return c.JSON(fiber.Map{
		"success": true,
		"code":    code,
	})
}

// BatchCreatePayload carries the batch size and an optional shared expiry.
type BatchCreatePayload struct {
	Count     int    `json:"count"`
	ExpiresAt string `json:"expiresAt"`
}

// Validate will run validation rules
func (r BatchCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Count,
			validation.Required.Error("Missing count parameter"),
			validation.Min(1).Error("Count must be an integer between 1 and 100"),
			validation.Max(100).Error("Count must be an integer between 1 and 100"),
		),
		validation.Field(&r.ExpiresAt, validation.By(validateExpiresAt)),
	)
}

func (a *InviteController) BatchCreate(c *fiber.Ctx) error {
	payload := new(BatchCreatePayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("batch create parse payload: %v", err)
		return writeValidationError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	expiresAt, err := parseExpiresAt(payload.ExpiresAt)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	codes := make([]string, 0, payload.Count)
	for i := 0; i < payload.Count; i++ {
		code, err := a.Repo.Invites().Generate(c.Context(), "", expiresAt)
		if err != nil {
			a.Logger.Error("batch create stopped after %d codes: %v", len(codes), err)
			break
		}
		codes = append(codes, code)
	}

	a.Logger.Info("batch created %d invite codes", len(codes))

	return c.JSON(fiber.Map{
		"success": true,
		"codes":   codes,
	})
}

func (a *InviteController) List(c *fiber.Ctx) error {
	records, err := a.Repo.Invites().List(c.Context())
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"inviteCodes": records,
	})
}

func (a *InviteController) ListAvailable(c *fiber.Ctx) error {
	records, err := a.Repo.Invites().ListAvailable(c.Context())
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"inviteCodes": records,
	})
}

func (a *InviteController) Show(c *fiber.Ctx) error {
	code := c.Params("code")

	record, err := a.Repo.Invites().GetByCode(c.Context(), code)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"inviteCode": record,
	})
}

// UpdateStatusPayload carries the target lifecycle state.
type UpdateStatusPayload struct {
	Status string `json:"status"`
}

// Validate will run validation rules
func (r UpdateStatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required.Error("Missing status")),
	)
}

// UpdateStatus is the administrative override. It goes through the state
// machine with the transition table disabled, so an operator can reactivate
// a used or revoked code.
func (a *InviteController) UpdateStatus(c *fiber.Ctx) error {
	code := c.Params("code")

	payload := new(UpdateStatusPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("update status parse payload: %v", err)
		return writeValidationError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	_, err := a.Repo.Invites().SetStatus(c.Context(), code, InviteStatus(payload.Status),
		WithForceTransition(),
		WithTransitionReason("admin status override"),
	)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	a.Logger.Info("invite code status updated: %s -> %s", code, payload.Status)

	return c.JSON(fiber.Map{"success": true})
}

func (a *InviteController) Revoke(c *fiber.Ctx) error {
	code := c.Params("code")

	if _, err := a.Repo.Invites().Revoke(c.Context(), code); err != nil {
		return writeError(c, a.Logger, err)
	}

	a.Logger.Info("invite code revoked: %s", code)

	return c.JSON(fiber.Map{"success": true})
}

func (a *InviteController) Delete(c *fiber.Ctx) error {
	code := c.Params("code")

	if err := a.Repo.Invites().Delete(c.Context(), code); err != nil {
		return writeError(c, a.Logger, err)
	}

	a.Logger.Info("invite code deleted: %s", code)

	return c.JSON(fiber.Map{"success": true})
}

func (a *InviteController) CleanupExpired(c *fiber.Ctx) error {
	count, err := a.Repo.Invites().CleanupExpired(c.Context())
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	a.Logger.Info("expired %d stale invite codes", count)

	return c.JSON(fiber.Map{
		"success": true,
		"count":   count,
	})
}

func validateExpiresAt(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := parseISOTime(s); err != nil {
		return errors.New("Invalid expiresAt format, use ISO 8601", errors.CategoryValidation)
	}
	return nil
}

func parseExpiresAt(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	t, err := parseISOTime(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "Invalid expiresAt format, use ISO 8601").
			WithCode(errors.CodeBadRequest)
	}

	return &t, nil
}

// parseISOTime accepts RFC 3339 as well as the zone-less variant browser
// clients tend to send.
func parseISOTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}
