package vault

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthResult is the outcome of a successful master password exchange.
type AuthResult struct {
	Token       string
	User        *AdminUser
	Provisioned bool
}

// Auther implements the login-or-provision flow on top of the repository
// manager and the token service.
type Auther struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
	now    func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, tokens TokenService) *Auther {
	return &Auther{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokens
}

// AuthenticateOrProvision is the single entry point for the master password
// exchange. When a credential already exists for the invite code and the
// derived hash verifies, it is a login. Otherwise the invite code is
// redeemed and the admin credential is created, both inside one
// transaction, so a replayed request can never consume the code twice.
func (s *Auther) AuthenticateOrProvision(ctx context.Context, derivedHash, inviteCode, salt, ipAddress string) (*AuthResult, error) {
	user, err := s.repo.Users().FindByHashAndInvite(ctx, derivedHash, inviteCode)
	if err == nil {
		token, err := s.tokens.Generate(user.ID.String(), user.Username, ipAddress)
		if err != nil {
			s.logger.Error("Authenticate token generation failed: %v", err)
			return nil, err
		}
		return &AuthResult{Token: token, User: user}, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("Authenticate credential lookup failed: %v", err)
		return nil, err
	}

	invite, err := s.repo.Invites().GetByCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, ErrInviteRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}

	if !invite.IsUsable(s.now()) {
		return nil, errWithMetadata(ErrInviteInvalid, map[string]any{
			"status": invite.Status,
		})
	}

	if salt == "" {
		return nil, ErrMissingSalt
	}

	var created *AdminUser
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.repo.Users().CreateCredentialTx(ctx, tx, derivedHash, inviteCode, salt)
		if err != nil {
			return err
		}

		if err := s.repo.Invites().MarkUsedTx(ctx, tx, inviteCode); err != nil {
			return err
		}

		created = record
		return nil
	})
	if err != nil {
		s.logger.Error("Provision transaction failed: %v", err)
		return nil, err
	}

	s.logger.Info("Provisioned admin credential for invite %s", inviteCode)

	token, err := s.tokens.Generate(created.ID.String(), created.Username, ipAddress)
	if err != nil {
		s.logger.Error("Provision token generation failed: %v", err)
		return nil, err
	}

	return &AuthResult{Token: token, User: created, Provisioned: true}, nil
}

// VerifyToken validates a session token and checks the caller's address
// against the one the token was issued for.
func (s *Auther) VerifyToken(tokenString, ipAddress string) (*SessionClaims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(claims.IPAddress), []byte(ipAddress)) != 1 {
		s.logger.Error("VerifyToken IP mismatch for user %s", claims.UserID)
		return nil, ErrIPMismatch
	}

	return claims, nil
}

// ChangePassword verifies the current derived hash and stores the new one
// under a fresh salt.
func (s *Auther) ChangePassword(ctx context.Context, userID, oldDerivedHash, newDerivedHash string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid user id").
			WithCode(errors.CodeBadRequest)
	}

	user, err := s.repo.Users().GetCredentialByID(ctx, id)
	if err != nil {
		return err
	}

	if !s.repo.Users().VerifyPassword(user, oldDerivedHash) {
		return ErrBadCredentials
	}

	return s.repo.Users().UpdatePassword(ctx, id, newDerivedHash)
}

// DeleteAccount removes the admin credential and every vault entry it owns.
func (s *Auther) DeleteAccount(ctx context.Context, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid user id").
			WithCode(errors.CodeBadRequest)
	}

	return s.repo.Users().DeleteWithEntries(ctx, id)
}
