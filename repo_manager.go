package vault

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Invites() Invites
	Users() AdminUsers
	Entries() VaultEntries
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Validate() error
	MustValidate()
}

type mngr struct {
	db      *bun.DB
	invites Invites
	users   AdminUsers
	entries VaultEntries
}

type ManagerOption func(*mngr)

// WithManagerInvites overrides the invites repository (useful for tests).
func WithManagerInvites(repo Invites) ManagerOption {
	return func(m *mngr) {
		if repo != nil {
			m.invites = repo
		}
	}
}

// WithManagerUsers overrides the credential store (useful for tests).
func WithManagerUsers(repo AdminUsers) ManagerOption {
	return func(m *mngr) {
		if repo != nil {
			m.users = repo
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:      db,
		invites: NewInvitesRepository(db),
		users:   NewAdminUsersRepository(db),
		entries: NewVaultEntriesRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.invites == nil {
		return errors.New("repository invites should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.entries == nil {
		return errors.New("repository entries should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Invites() Invites {
	return m.invites
}

func (m mngr) Users() AdminUsers {
	return m.users
}

func (m mngr) Entries() VaultEntries {
	return m.entries
}
