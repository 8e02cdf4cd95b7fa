package vault_test

import (
	"testing"
	"time"

	vault "github.com/goliatone/go-vault"
	"github.com/stretchr/testify/assert"
)

func TestNewInviteID(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 30, 45, 123456000, time.UTC)

	id := vault.NewInviteID(at)

	assert.Equal(t, "20240315093045123456", id)
	assert.Len(t, id, 20)
}

func TestInviteCodeIsUsable(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("active and unexpired", func(t *testing.T) {
		code := &vault.InviteCode{Status: vault.InviteStatusActive, ExpiresAt: now.Add(time.Hour)}
		assert.True(t, code.IsUsable(now))
	})

	t.Run("active but past expiry", func(t *testing.T) {
		code := &vault.InviteCode{Status: vault.InviteStatusActive, ExpiresAt: now.Add(-time.Minute)}
		assert.False(t, code.IsUsable(now))
	})

	t.Run("non-active states", func(t *testing.T) {
		for _, status := range []vault.InviteStatus{
			vault.InviteStatusUsed,
			vault.InviteStatusExpired,
			vault.InviteStatusRevoked,
		} {
			code := &vault.InviteCode{Status: status, ExpiresAt: now.Add(time.Hour)}
			assert.False(t, code.IsUsable(now), status)
		}
	})

	t.Run("nil receiver", func(t *testing.T) {
		var code *vault.InviteCode
		assert.False(t, code.IsUsable(now))
	})
}

func TestValidInviteStatus(t *testing.T) {
	assert.True(t, vault.ValidInviteStatus(vault.InviteStatusActive))
	assert.True(t, vault.ValidInviteStatus(vault.InviteStatusUsed))
	assert.True(t, vault.ValidInviteStatus(vault.InviteStatusExpired))
	assert.True(t, vault.ValidInviteStatus(vault.InviteStatusRevoked))
	assert.False(t, vault.ValidInviteStatus("pending"))
	assert.False(t, vault.ValidInviteStatus(""))
}
