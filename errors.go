package vault

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeIPMismatch        = "IP_MISMATCH"
	TextCodeInviteNotFound    = "INVITE_NOT_FOUND"
	TextCodeInviteInvalid     = "INVITE_INVALID"
	TextCodeMissingSalt       = "MISSING_SALT"
	TextCodeAdminExists       = "ADMIN_EXISTS"
	TextCodeBadCredentials    = "BAD_CREDENTIALS"
	TextCodeInvalidStatus     = "INVALID_INVITE_STATUS"
	TextCodeInvalidTransition = "INVALID_INVITE_TRANSITION"
	TextCodeTerminalState     = "TERMINAL_INVITE_STATE"
)

// ErrTokenExpired is returned when a session token is past its expiry.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token fails signature or structure checks.
var ErrTokenMalformed = errors.New("invalid token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrIPMismatch is returned when a token is presented from an IP other than
// the one it was bound to at issuance.
var ErrIPMismatch = errors.New("IP address mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeIPMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrInviteNotFound is returned by the auth flow when the submitted invite
// code has no row. The original API reports this as a bad request, not a 404.
var ErrInviteNotFound = errors.New("invite code does not exist", errors.CategoryBadInput).
	WithTextCode(TextCodeInviteNotFound).
	WithCode(errors.CodeBadRequest)

// ErrInviteInvalid covers used, revoked, and expired codes alike.
var ErrInviteInvalid = errors.New("invite invalid", errors.CategoryBadInput).
	WithTextCode(TextCodeInviteInvalid).
	WithCode(errors.CodeBadRequest)

// ErrMissingSalt is returned when the provisioning branch is reached without
// a salt in the request.
var ErrMissingSalt = errors.New("missing salt", errors.CategoryValidation).
	WithTextCode(TextCodeMissingSalt).
	WithCode(errors.CodeBadRequest)

// ErrAdminExists is returned when provisioning races or replays against an
// already-created admin credential.
var ErrAdminExists = errors.New("admin credential already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAdminExists).
	WithCode(errors.CodeBadRequest)

// ErrBadCredentials is returned on password verification failure.
var ErrBadCredentials = errors.New("invalid old password", errors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidStatus is returned when a status string names no known state.
var ErrInvalidStatus = errors.New("invalid invite code status", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidStatus).
	WithCode(errors.CodeBadRequest)

// errWithMetadata attaches request metadata to a copy of a sentinel.
// WithMetadata mutates its receiver, so calling it on the package-level
// value would rewrite errors already handed to other callers and race
// between requests. The copy keeps the sentinel as its source so
// errors.Is still matches.
func errWithMetadata(sentinel *errors.Error, meta map[string]any) *errors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(meta)
}
