package vault_test

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	vault "github.com/goliatone/go-vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestInvitesGenerate(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	t.Run("synthesizes a two digit code", func(t *testing.T) {
		repo := vault.NewInvitesRepository(db)

		code, err := repo.Generate(ctx, "", nil)
		require.NoError(t, err)

		assert.Regexp(t, regexp.MustCompile(`^\d{2}$`), code)

		record, err := repo.GetByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, vault.InviteStatusActive, record.Status)
		assert.Len(t, record.ID, 20)
	})

	t.Run("applies the default expiry", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		repo := vault.NewInvitesRepository(db, vault.WithInvitesClock(fixedClock(now)))

		code, err := repo.Generate(ctx, "", nil)
		require.NoError(t, err)

		record, err := repo.GetByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, now.Add(vault.DefaultInviteTTL), record.ExpiresAt.UTC())
	})

	t.Run("honors an explicit code and expiry", func(t *testing.T) {
		repo := vault.NewInvitesRepository(db)
		expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

		code, err := repo.Generate(ctx, "golden-ticket", &expiry)
		require.NoError(t, err)
		assert.Equal(t, "golden-ticket", code)

		record, err := repo.GetByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, expiry, record.ExpiresAt.UTC())
	})

	t.Run("rejects a duplicate explicit code", func(t *testing.T) {
		repo := vault.NewInvitesRepository(db)

		_, err := repo.Generate(ctx, "dup-code", nil)
		require.NoError(t, err)

		_, err = repo.Generate(ctx, "dup-code", nil)
		assert.ErrorIs(t, err, vault.ErrInviteCodeTaken)
	})

	t.Run("only a code collision reads as taken", func(t *testing.T) {
		// a pinned clock makes both rows derive the same primary key; that
		// failure is a storage fault, not a duplicate code
		now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
		repo := vault.NewInvitesRepository(db, vault.WithInvitesClock(fixedClock(now)))

		_, err := repo.Generate(ctx, "left", nil)
		require.NoError(t, err)

		_, err = repo.Generate(ctx, "right", nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, vault.ErrInviteCodeTaken)
	})
}

func TestInvitesGetByCode(t *testing.T) {
	db := setupDB(t)
	repo := vault.NewInvitesRepository(db)

	_, err := repo.GetByCode(context.Background(), "no-such-code")

	assert.ErrorIs(t, err, vault.ErrInviteRecordNotFound)
}

func TestInvitesListAvailable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	repo := vault.NewInvitesRepository(db)

	fresh, err := repo.Generate(ctx, "fresh", nil)
	require.NoError(t, err)

	past := now.Add(-time.Hour)
	_, err = repo.Generate(ctx, "stale", &past)
	require.NoError(t, err)

	_, err = repo.Generate(ctx, "burned", nil)
	require.NoError(t, err)
	_, err = repo.Revoke(ctx, "burned")
	require.NoError(t, err)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	available, err := repo.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, fresh, available[0].Code)
}

func TestInvitesSetStatus(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)

	_, err := repo.Generate(ctx, "lifecycle", nil)
	require.NoError(t, err)

	t.Run("allows the active to used transition", func(t *testing.T) {
		record, err := repo.SetStatus(ctx, "lifecycle", vault.InviteStatusUsed)
		require.NoError(t, err)
		assert.Equal(t, vault.InviteStatusUsed, record.Status)
	})

	t.Run("rejects leaving a terminal state", func(t *testing.T) {
		_, err := repo.SetStatus(ctx, "lifecycle", vault.InviteStatusActive)
		assert.ErrorIs(t, err, vault.ErrTerminalState)
	})

	t.Run("force reactivates for operators", func(t *testing.T) {
		record, err := repo.SetStatus(ctx, "lifecycle", vault.InviteStatusActive, vault.WithForceTransition())
		require.NoError(t, err)
		assert.Equal(t, vault.InviteStatusActive, record.Status)
	})

	t.Run("rejects unknown states", func(t *testing.T) {
		_, err := repo.SetStatus(ctx, "lifecycle", "paused")
		assert.ErrorIs(t, err, vault.ErrInvalidStatus)
	})
}

func TestInvitesMarkUsedTx(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)
	manager := vault.NewRepositoryManager(db, vault.WithManagerInvites(repo))

	_, err := repo.Generate(ctx, "once-only", nil)
	require.NoError(t, err)

	err = manager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.MarkUsedTx(ctx, tx, "once-only")
	})
	require.NoError(t, err)

	record, err := repo.GetByCode(ctx, "once-only")
	require.NoError(t, err)
	assert.Equal(t, vault.InviteStatusUsed, record.Status)

	// second consumption loses the status guard
	err = manager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.MarkUsedTx(ctx, tx, "once-only")
	})
	assert.ErrorIs(t, err, vault.ErrInviteInvalid)
}

func TestInvitesCleanupExpired(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)

	past := time.Now().Add(-time.Hour)
	for _, code := range []string{"old-1", "old-2"} {
		_, err := repo.Generate(ctx, code, &past)
		require.NoError(t, err)
	}
	_, err := repo.Generate(ctx, "still-good", nil)
	require.NoError(t, err)

	count, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	record, err := repo.GetByCode(ctx, "old-1")
	require.NoError(t, err)
	assert.Equal(t, vault.InviteStatusExpired, record.Status)

	record, err = repo.GetByCode(ctx, "still-good")
	require.NoError(t, err)
	assert.Equal(t, vault.InviteStatusActive, record.Status)

	// idempotent once everything stale is flipped
	count, err = repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInvitesDelete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)

	_, err := repo.Generate(ctx, "doomed", nil)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "doomed"))

	_, err = repo.GetByCode(ctx, "doomed")
	assert.ErrorIs(t, err, vault.ErrInviteRecordNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "doomed"), vault.ErrInviteRecordNotFound)
}

func TestInvitesMissErrorsAreIsolated(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)

	_, err1 := repo.GetByCode(ctx, "first-miss")
	require.ErrorIs(t, err1, vault.ErrInviteRecordNotFound)

	_, err2 := repo.GetByCode(ctx, "second-miss")
	require.ErrorIs(t, err2, vault.ErrInviteRecordNotFound)

	var rich1, rich2 *goerrors.Error
	require.ErrorAs(t, err1, &rich1)
	require.ErrorAs(t, err2, &rich2)

	// each miss carries its own metadata and leaves the shared value alone
	assert.NotSame(t, rich1, rich2)
	assert.Equal(t, "first-miss", rich1.Metadata["code"])
	assert.Equal(t, "second-miss", rich2.Metadata["code"])
	assert.Empty(t, vault.ErrInviteRecordNotFound.Metadata)
}

func TestInvitesConcurrentMisses(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := repo.GetByCode(ctx, fmt.Sprintf("missing-%d-%d", worker, j))
				assert.ErrorIs(t, err, vault.ErrInviteRecordNotFound)
			}
		}(i)
	}
	wg.Wait()
}

func TestInvitesConcurrentStatusChanges(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := vault.NewInvitesRepository(db)

	codes := []string{"w1", "w2", "w3", "w4"}
	for _, code := range codes {
		_, err := repo.Generate(ctx, code, nil)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, err := repo.SetStatus(ctx, code, vault.InviteStatusRevoked)
			assert.NoError(t, err)
		}(code)
	}
	wg.Wait()

	for _, code := range codes {
		record, err := repo.GetByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, vault.InviteStatusRevoked, record.Status)
	}
}
