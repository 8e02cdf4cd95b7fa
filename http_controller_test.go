package vault_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	vault "github.com/goliatone/go-vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) (*fiber.App, vault.RepositoryManager) {
	t.Helper()

	repo := setupRepo(t)
	auther := vault.NewAuthenticator(repo, vault.NewTokenService(testSigningKey, 24))

	app := fiber.New()
	vault.RegisterRoutes(app, auther, repo, nil)

	return app, repo
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	res, err := app.Test(req, -1)
	require.NoError(t, err)

	return res
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()

	defer res.Body.Close()
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))

	return body
}

func loginForToken(t *testing.T, app *fiber.App, repo vault.RepositoryManager) string {
	t.Helper()

	_, err := repo.Invites().Generate(context.Background(), "42", nil)
	require.NoError(t, err)

	res := doRequest(t, app, http.MethodPost, "/api/auth/master-password", "", fiber.Map{
		"derivedHash": testDerivedHash,
		"inviteCode":  "42",
		"salt":        "client-salt",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	return token
}

func TestHTTPMasterPassword(t *testing.T) {
	app, repo := setupApp(t)

	_, err := repo.Invites().Generate(context.Background(), "42", nil)
	require.NoError(t, err)

	payload := fiber.Map{
		"derivedHash": testDerivedHash,
		"inviteCode":  "42",
		"salt":        "client-salt",
	}

	t.Run("provision omits the user object", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/master-password", "", payload)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, true, body["success"])
		assert.NotEmpty(t, body["token"])
		assert.NotContains(t, body, "user")
	})

	t.Run("login includes the user object", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/master-password", "", payload)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, vault.AdminUsername, user["username"])
	})

	t.Run("missing fields", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/master-password", "", fiber.Map{
			"derivedHash": testDerivedHash,
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body["error"], "Missing derived hash or invite code")
	})

	t.Run("unknown invite", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/master-password", "", fiber.Map{
			"derivedHash": "deadbeef",
			"inviteCode":  "99",
			"salt":        "client-salt",
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, false, body["success"])
	})
}

func TestHTTPSalt(t *testing.T) {
	app, _ := setupApp(t)

	res := doRequest(t, app, http.MethodGet, "/api/auth/salt", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decodeBody(t, res)
	salt, _ := body["salt"].(string)
	assert.Len(t, salt, 32)
}

func TestHTTPVerifyToken(t *testing.T) {
	app, repo := setupApp(t)
	token := loginForToken(t, app, repo)

	t.Run("missing token", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/auth/verify-token", "", nil)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, "Missing token", body["error"])
	})

	t.Run("valid token", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/auth/verify-token", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, vault.AdminUsername, body["username"])
		assert.NotEmpty(t, body["user_id"])
	})

	t.Run("garbage token", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/auth/verify-token", "not-a-jwt", nil)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestHTTPProtectedRoutes(t *testing.T) {
	app, _ := setupApp(t)

	t.Run("missing token", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/invite-codes/", "", nil)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, "Missing token", body["error"])
	})

	t.Run("garbage token", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/passwords/", "not-a-jwt", nil)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestHTTPInviteLifecycle(t *testing.T) {
	app, repo := setupApp(t)
	token := loginForToken(t, app, repo)

	t.Run("create explicit code", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/", token, fiber.Map{"code": "55"})
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, "55", body["code"])
	})

	t.Run("create without body", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.NotEmpty(t, body["code"])
	})

	t.Run("invalid expiry format", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/", token, fiber.Map{
			"expiresAt": "next tuesday",
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body["error"], "Invalid expiresAt format")
	})

	t.Run("batch create", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/batch", token, fiber.Map{"count": 3})
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		codes, ok := body["codes"].([]any)
		require.True(t, ok)
		assert.Len(t, codes, 3)
	})

	t.Run("batch count out of range", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/batch", token, fiber.Map{"count": 500})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body["error"], "Count must be an integer between 1 and 100")
	})

	t.Run("batch count missing", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/batch", token, fiber.Map{})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body["error"], "Missing count parameter")
	})

	t.Run("list and show", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/invite-codes/", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		records, ok := body["inviteCodes"].([]any)
		require.True(t, ok)
		assert.NotEmpty(t, records)

		res = doRequest(t, app, http.MethodGet, "/api/invite-codes/55", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body = decodeBody(t, res)
		record, ok := body["inviteCode"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "55", record["code"])
		assert.Equal(t, vault.InviteStatusActive, record["status"])
	})

	t.Run("status override reactivates a used code", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPut, "/api/invite-codes/42/status", token, fiber.Map{
			"status": "active",
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		invite, err := repo.Invites().GetByCode(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, vault.InviteStatusActive, invite.Status)
	})

	t.Run("status missing", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPut, "/api/invite-codes/55/status", token, fiber.Map{})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body["error"], "Missing status")
	})

	t.Run("status unknown", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPut, "/api/invite-codes/55/status", token, fiber.Map{
			"status": "paused",
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("revoke and delete", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPut, "/api/invite-codes/55/revoke", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		invite, err := repo.Invites().GetByCode(context.Background(), "55")
		require.NoError(t, err)
		assert.Equal(t, vault.InviteStatusRevoked, invite.Status)

		res = doRequest(t, app, http.MethodDelete, "/api/invite-codes/55", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		res = doRequest(t, app, http.MethodGet, "/api/invite-codes/55", token, nil)
		require.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("cleanup", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/invite-codes/cleanup", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body, "count")
	})
}

func TestHTTPPasswords(t *testing.T) {
	app, repo := setupApp(t)
	token := loginForToken(t, app, repo)

	entry := fiber.Map{
		"title":    "email",
		"username": "admin",
		"password": "opaque-ciphertext",
		"url":      "https://mail.example.com",
		"category": "personal",
		"notes":    "primary inbox",
	}

	res := doRequest(t, app, http.MethodPost, "/api/passwords/", token, entry)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var entryID string

	t.Run("list is a bare array", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/passwords/", token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		defer res.Body.Close()
		var records []map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&records))
		require.Len(t, records, 1)

		assert.Equal(t, "email", records[0]["title"])
		assert.Equal(t, "opaque-ciphertext", records[0]["password"])

		entryID, _ = records[0]["id"].(string)
		require.NotEmpty(t, entryID)
	})

	t.Run("show", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/passwords/"+entryID, token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.Equal(t, "email", body["title"])
	})

	t.Run("post with id upserts", func(t *testing.T) {
		updated := fiber.Map{}
		for k, v := range entry {
			updated[k] = v
		}
		updated["id"] = entryID
		updated["title"] = "primary email"

		res := doRequest(t, app, http.MethodPost, "/api/passwords/", token, updated)
		require.Equal(t, http.StatusOK, res.StatusCode)

		res = doRequest(t, app, http.MethodGet, "/api/passwords/"+entryID, token, nil)
		body := decodeBody(t, res)
		assert.Equal(t, "primary email", body["title"])

		res = doRequest(t, app, http.MethodGet, "/api/passwords/", token, nil)
		defer res.Body.Close()
		var records []map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&records))
		assert.Len(t, records, 1)
	})

	t.Run("put updates", func(t *testing.T) {
		updated := fiber.Map{}
		for k, v := range entry {
			updated[k] = v
		}
		updated["notes"] = "rotated"

		res := doRequest(t, app, http.MethodPut, "/api/passwords/"+entryID, token, updated)
		require.Equal(t, http.StatusOK, res.StatusCode)

		res = doRequest(t, app, http.MethodGet, "/api/passwords/"+entryID, token, nil)
		body := decodeBody(t, res)
		assert.Equal(t, "rotated", body["notes"])
	})

	t.Run("missing required fields", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/passwords/", token, fiber.Map{
			"title": "half a record",
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("bad entry id", func(t *testing.T) {
		res := doRequest(t, app, http.MethodGet, "/api/passwords/not-a-uuid", token, nil)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		res := doRequest(t, app, http.MethodDelete, "/api/passwords/"+entryID, token, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		res = doRequest(t, app, http.MethodGet, "/api/passwords/"+entryID, token, nil)
		require.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func TestHTTPChangePassword(t *testing.T) {
	app, repo := setupApp(t)
	token := loginForToken(t, app, repo)

	newHash := "b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90a1"

	t.Run("wrong old password", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/change-password", token, fiber.Map{
			"oldPassword": "deadbeef",
			"newPassword": newHash,
		})
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("missing fields", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/change-password", token, fiber.Map{
			"oldPassword": testDerivedHash,
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body["error"], "Missing required fields")
	})

	t.Run("rotates and logs in with the new hash", func(t *testing.T) {
		res := doRequest(t, app, http.MethodPost, "/api/auth/change-password", token, fiber.Map{
			"oldPassword": testDerivedHash,
			"newPassword": newHash,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		res = doRequest(t, app, http.MethodPost, "/api/auth/master-password", "", fiber.Map{
			"derivedHash": newHash,
			"inviteCode":  "42",
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		assert.Contains(t, body, "user")
	})
}
