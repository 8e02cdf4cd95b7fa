package vault

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EntriesController exposes the stored password rows. The backend never
// interprets the password field; it is ciphertext the client produced.
type EntriesController struct {
	Logger Logger
	Repo   RepositoryManager
}

type EntriesControllerOption func(*EntriesController) *EntriesController

func WithEntriesLogger(logger Logger) EntriesControllerOption {
	return func(a *EntriesController) *EntriesController {
		if logger != nil {
			a.Logger = logger
		}
		return a
	}
}

func NewEntriesController(repo RepositoryManager, opts ...EntriesControllerOption) *EntriesController {
	c := &EntriesController{
		Logger: defLogger{},
		Repo:   repo,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in entries controller...")
	}

	return c
}

// EntryPayload is the create and update body.
type EntryPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Notes    string `json:"notes"`
}

// Validate will run validation rules
func (r EntryPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Category, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.URL, validation.Length(0, 2048)),
	)
}

func (r EntryPayload) toRecord(userID uuid.UUID) *VaultEntry {
	return &VaultEntry{
		UserID:   userID,
		Title:    r.Title,
		Username: r.Username,
		Password: r.Password,
		URL:      r.URL,
		Category: r.Category,
		Notes:    r.Notes,
	}
}

func (a *EntriesController) List(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	records, err := a.Repo.Entries().ListByUser(c.Context(), userID)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(records)
}

func (a *EntriesController) Show(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	id, err := parseEntryID(c.Params("id"))
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	record, err := a.Repo.Entries().GetForUser(c.Context(), id, userID)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(record)
}

// Save creates an entry, or updates it when the payload carries the id of
// an existing row. Clients replay the full record on edit, so the POST
// behaves as an upsert.
func (a *EntriesController) Save(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	payload := new(EntryPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("save entry parse payload: %v", err)
		return writeValidationError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	record := payload.toRecord(userID)

	if payload.ID != "" {
		id, err := parseEntryID(payload.ID)
		if err != nil {
			return writeError(c, a.Logger, err)
		}

		if _, err := a.Repo.Entries().GetForUser(c.Context(), id, userID); err == nil {
			record.ID = id
			if _, err := a.Repo.Entries().UpdateEntry(c.Context(), record); err != nil {
				return writeError(c, a.Logger, err)
			}
			return c.JSON(fiber.Map{"success": true})
		} else if !errors.Is(err, ErrEntryNotFound) {
			return writeError(c, a.Logger, err)
		}

		record.ID = id
	}

	if _, err := a.Repo.Entries().CreateEntry(c.Context(), record); err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (a *EntriesController) Update(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	id, err := parseEntryID(c.Params("id"))
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	payload := new(EntryPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("update entry parse payload: %v", err)
		return writeValidationError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return writeValidationError(c, err)
	}

	record := payload.toRecord(userID)
	record.ID = id

	if _, err := a.Repo.Entries().UpdateEntry(c.Context(), record); err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (a *EntriesController) Delete(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	id, err := parseEntryID(c.Params("id"))
	if err != nil {
		return writeError(c, a.Logger, err)
	}

	if err := a.Repo.Entries().DeleteForUser(c.Context(), id, userID); err != nil {
		return writeError(c, a.Logger, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	session := SessionFromContext(c)
	if session == nil {
		return uuid.Nil, errors.New("no session in request", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	id, err := uuid.Parse(session.UserID)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CategoryAuth, "invalid session user id").
			WithCode(errors.CodeUnauthorized)
	}

	return id, nil
}

func parseEntryID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CategoryBadInput, "invalid entry id").
			WithCode(errors.CodeBadRequest)
	}
	return id, nil
}
