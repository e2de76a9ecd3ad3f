package services

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	memtest "github.com/amirphl/Susanoo/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T, refresher TokenRefresher) (*CredentialVaultImpl, *memtest.MemoryEmailAccountRepo) {
	t.Helper()
	accounts := memtest.NewMemoryEmailAccountRepo()
	vault, err := NewCredentialVault(&config.VaultConfig{
		EncryptionKey: memtest.TestEncryptionKey,
		RefreshMargin: 5 * time.Minute,
	}, accounts, refresher)
	require.NoError(t, err)
	return vault, accounts
}

func TestGetValidCredentialReturnsDecryptedToken(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(1*time.Hour))
	require.NoError(t, accounts.Save(ctx, account))

	token, err := vault.GetValidCredential(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "access-sender@example.com", token)
	assert.Empty(t, refresher.Requests, "valid token must not trigger a refresh")
}

func TestGetValidCredentialRefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{Result: &TokenResult{AccessToken: "fresh-token", ExpiresIn: 3600}}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	// Expires inside the 5 minute margin
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(1*time.Minute))
	require.NoError(t, accounts.Save(ctx, account))

	token, err := vault.GetValidCredential(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	require.Len(t, refresher.Requests, 1)
	assert.Equal(t, "refresh-sender@example.com", refresher.Requests[0])

	// The refreshed token is persisted encrypted with a new expiry
	stored, err := accounts.ByID(ctx, account.ID)
	require.NoError(t, err)
	decrypted, err := cipher.OpenString(stored.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", decrypted)
	assert.True(t, stored.TokenExpiresAt.After(time.Now().UTC().Add(30*time.Minute)))

	// A second caller sees the refreshed token without another exchange
	token, err = vault.GetValidCredential(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Len(t, refresher.Requests, 1)
}

func TestGetValidCredentialFailedRefreshMarksAccount(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{Err: ErrProviderAuth}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(-1*time.Minute))
	require.NoError(t, accounts.Save(ctx, account))

	_, err := vault.GetValidCredential(ctx, account)
	assert.ErrorIs(t, err, ErrReauthorizationRequired)

	stored, err := accounts.ByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusError, stored.Status)

	// Subsequent calls short-circuit without hitting the refresher again
	_, err = vault.GetValidCredential(ctx, account)
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.Len(t, refresher.Requests, 1)
}

func TestGetValidCredentialErroredAccountShortCircuits(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(1*time.Hour))
	account.Status = models.AccountStatusError
	require.NoError(t, accounts.Save(ctx, account))

	_, err := vault.GetValidCredential(ctx, account)
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.Empty(t, refresher.Requests)
}

func TestGetValidCredentialCorruptRecordFailsClosed(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(1*time.Hour))
	account.EncryptedAccessToken = []byte("garbage")
	require.NoError(t, accounts.Save(ctx, account))

	_, err := vault.GetValidCredential(ctx, account)
	assert.ErrorIs(t, err, ErrCredentialCorrupt)
}

func TestStoreCredentialEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	vault, accounts := newTestVault(t, &MockTokenRefresher{})

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC())
	require.NoError(t, accounts.Save(ctx, account))

	expiresAt := time.Now().UTC().Add(1 * time.Hour)
	require.NoError(t, vault.StoreCredential(ctx, account.ID, "new-access", "new-refresh", expiresAt))

	stored, err := accounts.ByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.EncryptedAccessToken), "new-access")
	assert.NotContains(t, string(stored.EncryptedRefreshToken), "new-refresh")

	access, err := cipher.OpenString(stored.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
}

func TestGetValidCredentialPersistsRotatedRefreshToken(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{Result: &TokenResult{
		AccessToken:  "fresh-token",
		RefreshToken: "rotated-refresh",
		ExpiresIn:    3600,
	}}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(1*time.Minute))
	require.NoError(t, accounts.Save(ctx, account))

	_, err := vault.GetValidCredential(ctx, account)
	require.NoError(t, err)

	stored, err := accounts.ByID(ctx, account.ID)
	require.NoError(t, err)
	decrypted, err := cipher.OpenString(stored.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh", decrypted)

	// The next refresh exchanges the rotated token
	require.NoError(t, accounts.UpdateCredentials(ctx, account.ID, stored.EncryptedAccessToken, stored.EncryptedRefreshToken, time.Now().UTC().Add(-1*time.Minute)))
	refreshed, err := accounts.ByID(ctx, account.ID)
	require.NoError(t, err)
	_, err = vault.GetValidCredential(ctx, refreshed)
	require.NoError(t, err)
	require.Len(t, refresher.Requests, 2)
	assert.Equal(t, "rotated-refresh", refresher.Requests[1])
}

func TestGetValidCredentialKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ctx := context.Background()
	refresher := &MockTokenRefresher{Result: &TokenResult{AccessToken: "fresh-token", ExpiresIn: 3600}}
	vault, accounts := newTestVault(t, refresher)

	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(1*time.Minute))
	require.NoError(t, accounts.Save(ctx, account))

	_, err := vault.GetValidCredential(ctx, account)
	require.NoError(t, err)

	stored, err := accounts.ByID(ctx, account.ID)
	require.NoError(t, err)
	decrypted, err := cipher.OpenString(stored.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-sender@example.com", decrypted)
}
