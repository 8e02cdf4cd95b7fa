package vault

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrEntryNotFound is returned when a vault entry lookup misses.
var ErrEntryNotFound = goerrors.New("password entry not found", goerrors.CategoryNotFound).
	WithTextCode("ENTRY_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// VaultEntries stores the encrypted password rows. Pure persistence: store
// and return what was given, always scoped by owner.
type VaultEntries interface {
	repository.Repository[*VaultEntry]

	ListByUser(ctx context.Context, userID uuid.UUID) ([]*VaultEntry, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*VaultEntry, error)
	CreateEntry(ctx context.Context, record *VaultEntry) (*VaultEntry, error)
	UpdateEntry(ctx context.Context, record *VaultEntry) (*VaultEntry, error)
	DeleteForUser(ctx context.Context, id, userID uuid.UUID) error
}

type vaultEntries struct {
	repository.Repository[*VaultEntry]
	db  *bun.DB
	now func() time.Time
}

var _ VaultEntries = (*vaultEntries)(nil)

func NewVaultEntriesRepository(db *bun.DB) VaultEntries {
	repo := repository.NewRepository[*VaultEntry](db, repository.ModelHandlers[*VaultEntry]{
		NewRecord: func() *VaultEntry { return &VaultEntry{} },
		GetID: func(e *VaultEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *VaultEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &vaultEntries{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (r *vaultEntries) ListByUser(ctx context.Context, userID uuid.UUID) ([]*VaultEntry, error) {
	var records []*VaultEntry
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("category ASC", "title ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list password entries")
	}
	return records, nil
}

func (r *vaultEntries) GetForUser(ctx context.Context, id, userID uuid.UUID) (*VaultEntry, error) {
	record := &VaultEntry{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errWithMetadata(ErrEntryNotFound, map[string]any{"id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load password entry")
	}
	return record, nil
}

func (r *vaultEntries) CreateEntry(ctx context.Context, record *VaultEntry) (*VaultEntry, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := r.now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	record, err := r.Repository.Create(ctx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password entry")
	}
	return record, nil
}

func (r *vaultEntries) UpdateEntry(ctx context.Context, record *VaultEntry) (*VaultEntry, error) {
	// ownership check first so a foreign id reads as a 404, not an update of
	// zero rows
	if _, err := r.GetForUser(ctx, record.ID, record.UserID); err != nil {
		return nil, err
	}

	now := r.now()
	record.UpdatedAt = &now

	record, err := r.Repository.Update(ctx, record, repository.UpdateByID(record.ID.String()))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password entry")
	}
	return record, nil
}

func (r *vaultEntries) DeleteForUser(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*VaultEntry)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete password entry")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return errWithMetadata(ErrEntryNotFound, map[string]any{"id": id.String()})
	}
	return nil
}
