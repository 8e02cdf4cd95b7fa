package vault

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrUserNotFound is returned when no admin credential matches.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode("USER_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// AdminUsers is the credential store. The system holds at most one record;
// the unique username column backs that invariant so concurrent provisioning
// attempts fail on insert instead of after a stale existence check.
type AdminUsers interface {
	repository.Repository[*AdminUser]

	Exists(ctx context.Context) (bool, error)
	FindByHashAndInvite(ctx context.Context, derivedHash, inviteCode string) (*AdminUser, error)
	GetCredentialByID(ctx context.Context, id uuid.UUID) (*AdminUser, error)
	CreateCredentialTx(ctx context.Context, tx bun.IDB, derivedHash, inviteCode, salt string) (*AdminUser, error)
	VerifyPassword(record *AdminUser, candidate string) bool
	UpdatePassword(ctx context.Context, id uuid.UUID, newDerivedHash string) error
	DeleteWithEntries(ctx context.Context, id uuid.UUID) error
}

type adminUsers struct {
	repository.Repository[*AdminUser]
	db  *bun.DB
	now func() time.Time
}

var (
	_ AdminUsers                        = (*adminUsers)(nil)
	_ repository.Repository[*AdminUser] = (*adminUsers)(nil)
)

type AdminUsersOption func(*adminUsers)

// WithAdminUsersClock injects a custom clock (useful for tests).
func WithAdminUsersClock(clock func() time.Time) AdminUsersOption {
	return func(r *adminUsers) {
		if clock != nil {
			r.now = clock
		}
	}
}

func NewAdminUsersRepository(db *bun.DB, opts ...AdminUsersOption) AdminUsers {
	repo := repository.NewRepository[*AdminUser](db, repository.ModelHandlers[*AdminUser]{
		NewRecord: func() *AdminUser { return &AdminUser{} },
		GetID: func(u *AdminUser) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *AdminUser, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	repoUsers := &adminUsers{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (r *adminUsers) Exists(ctx context.Context) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*AdminUser)(nil)).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check admin existence")
	}
	return exists, nil
}

// FindByHashAndInvite resolves the login branch: the stored invite must match
// and the storage hash re-derived from the submitted value must equal the
// stored one. Comparison is constant time.
func (r *adminUsers) FindByHashAndInvite(ctx context.Context, derivedHash, inviteCode string) (*AdminUser, error) {
	record := &AdminUser{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.invite_code = ?", inviteCode).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load admin credential")
	}

	if !r.VerifyPassword(record, derivedHash) {
		return nil, ErrUserNotFound
	}

	return record, nil
}

func (r *adminUsers) GetCredentialByID(ctx context.Context, id uuid.UUID) (*AdminUser, error) {
	record := &AdminUser{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errWithMetadata(ErrUserNotFound, map[string]any{"id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load admin credential")
	}
	return record, nil
}

// CreateCredentialTx provisions the single admin record. The id is derived
// deterministically from the fixed username, so a replayed create targets
// the same primary key and loses on the unique constraint.
func (r *adminUsers) CreateCredentialTx(ctx context.Context, tx bun.IDB, derivedHash, inviteCode, salt string) (*AdminUser, error) {
	if salt == "" {
		var err error
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	}

	now := r.now()
	record := &AdminUser{
		Username:     AdminUsername,
		PasswordHash: HashCredential(derivedHash, salt),
		Salt:         salt,
		InviteCode:   inviteCode,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}

	if id, err := hashid.NewUUID(AdminUsername); err == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	record, err := r.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		// any unique violation on this insert means the admin row exists;
		// everything else is a storage failure, not a conflict
		if isUniqueViolation(err, "") {
			return nil, errWithMetadata(ErrAdminExists, map[string]any{"username": AdminUsername})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create admin credential")
	}

	return record, nil
}

// VerifyPassword re-derives the storage hash over the candidate and the
// record's salt, comparing in constant time.
func (r *adminUsers) VerifyPassword(record *AdminUser, candidate string) bool {
	if record == nil {
		return false
	}
	return VerifyDerivedHash(HashCredential(candidate, record.Salt), record.PasswordHash)
}

// UpdatePassword stores a freshly salted hash for the new derived value.
func (r *adminUsers) UpdatePassword(ctx context.Context, id uuid.UUID, newDerivedHash string) error {
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}

	res, err := r.db.NewUpdate().
		Model((*AdminUser)(nil)).
		Set("password_hash = ?", HashCredential(newDerivedHash, salt)).
		Set("salt = ?", salt).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}
	if affected == 0 {
		return errWithMetadata(ErrUserNotFound, map[string]any{"id": id.String()})
	}

	return nil
}

// DeleteWithEntries removes the credential and every vault entry it owns in
// one transaction.
func (r *adminUsers) DeleteWithEntries(ctx context.Context, id uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*VaultEntry)(nil)).
			Where("user_id = ?", id).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete vault entries")
		}

		res, err := tx.NewDelete().
			Model((*AdminUser)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete admin credential")
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return errWithMetadata(ErrUserNotFound, map[string]any{"id": id.String()})
		}

		return nil
	})
}
