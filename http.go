package vault

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-vault/middleware/jwtware"
)

// ContextKey is where the protected-route middleware stores session claims.
const ContextKey = "session"

// RegisterRoutes mounts the full API surface on the app. Everything under
// /api/invite-codes and /api/passwords sits behind the session middleware;
// the auth endpoints that bootstrap a session do not.
func RegisterRoutes(app *fiber.App, auther *Auther, repo RepositoryManager, logger Logger) {
	protected := ProtectedRoute(auther, logger)

	authc := NewAuthController(auther, WithAuthLogger(logger))
	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/master-password", authc.MasterPassword)
	authGroup.Get("/salt", authc.Salt)
	authGroup.Get("/verify-token", authc.VerifyToken)
	authGroup.Post("/change-password", protected, authc.ChangePassword)

	invitec := NewInviteController(repo, WithInviteLogger(logger))
	inviteGroup := api.Group("/invite-codes", protected)
	inviteGroup.Post("/", invitec.Create)
	inviteGroup.Get("/", invitec.List)
	inviteGroup.Post("/batch", invitec.BatchCreate)
	inviteGroup.Get("/available", invitec.ListAvailable)
	inviteGroup.Post("/cleanup", invitec.CleanupExpired)
	inviteGroup.Get("/:code", invitec.Show)
	inviteGroup.Put("/:code/status", invitec.UpdateStatus)
	inviteGroup.Put("/:code/revoke", invitec.Revoke)
	inviteGroup.Delete("/:code", invitec.Delete)

	entriesc := NewEntriesController(repo, WithEntriesLogger(logger))
	entriesGroup := api.Group("/passwords", protected)
	entriesGroup.Get("/", entriesc.List)
	entriesGroup.Post("/", entriesc.Save)
	entriesGroup.Get("/:id", entriesc.Show)
	entriesGroup.Put("/:id", entriesc.Update)
	entriesGroup.Delete("/:id", entriesc.Delete)
}

// ProtectedRoute builds the session-guard middleware around the
// authenticator's token verification.
func ProtectedRoute(auther *Auther, logger Logger) fiber.Handler {
	return jwtware.New(jwtware.Config{
		ContextKey: ContextKey,
		Verify: func(tokenString, ipAddress string) (jwtware.SessionClaims, error) {
			return auther.VerifyToken(tokenString, ipAddress)
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if err.Error() == jwtware.ErrJWTMissingOrMalformed.Error() {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "Missing token",
				})
			}
			return writeError(c, logger, err)
		},
	})
}

// SessionFromContext returns the claims the middleware stored for this
// request, or nil when the route is unprotected.
func SessionFromContext(c *fiber.Ctx) *SessionClaims {
	claims, ok := c.Locals(ContextKey).(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// writeError maps an error to a JSON response. Rich errors carry their own
// status code and text code; everything else is a 500.
func writeError(c *fiber.Ctx, logger Logger, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusForCategory(richErr.Category)
	}

	if status >= fiber.StatusInternalServerError && logger != nil {
		logger.Error("request failed: %v", err)
	}

	body := fiber.Map{
		"success": false,
		"error":   richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.Status(status).JSON(body)
}

func statusForCategory(category errors.Category) int {
	switch category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return fiber.StatusUnauthorized
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeValidationError renders ozzo validation failures as a 400 with the
// field errors keyed by name.
func writeValidationError(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
	}

	var fieldErrors validation.Errors
	if errors.As(err, &fieldErrors) {
		body["validation"] = fieldErrors
	}

	return c.Status(fiber.StatusBadRequest).JSON(body)
}
