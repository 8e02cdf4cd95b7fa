package vault_test

import (
	"context"
	"testing"
	"time"

	vault "github.com/goliatone/go-vault"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := vault.OpenDB("file::memory:?cache=private")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, vault.RunMigrations(context.Background(), db))

	return db
}

func setupRepo(t *testing.T) vault.RepositoryManager {
	t.Helper()

	repo := vault.NewRepositoryManager(setupDB(t))
	repo.MustValidate()

	return repo
}

// fixedClock returns a clock pinned to the given instant.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
