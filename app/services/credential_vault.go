package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
)

// Vault credential errors
var (
	// ErrReauthorizationRequired means the stored refresh credential no longer
	// works and the operator must reconnect the account. Pending sends for the
	// account must not consume attempts on this.
	ErrReauthorizationRequired = errors.New("account requires re-authorization")

	// ErrCredentialCorrupt means the stored record failed to decrypt. The
	// vault fails closed, it never hands out partial plaintext.
	ErrCredentialCorrupt = errors.New("stored credential is corrupt")
)

// CredentialVault hands out decrypted, non-expired access tokens and keeps
// the encrypted records fresh.
type CredentialVault interface {
	// GetValidCredential returns a usable access token for the account,
	// refreshing it first when it expires within the configured margin.
	GetValidCredential(ctx context.Context, account *models.EmailAccount) (string, error)
	// StoreCredential encrypts and persists a new token pair.
	StoreCredential(ctx context.Context, accountID uint, accessToken, refreshToken string, expiresAt time.Time) error
}

// CredentialVaultImpl implements CredentialVault
type CredentialVaultImpl struct {
	cipher    *utils.CredentialCipher
	accounts  repository.EmailAccountRepository
	refresher TokenRefresher
	margin    time.Duration

	// Per-account refresh serialization. Two dispatch workers asking for the
	// same near-expiry credential must trigger one refresh, not two.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex

	now func() time.Time
}

// NewCredentialVault creates a credential vault
func NewCredentialVault(cfg *config.VaultConfig, accounts repository.EmailAccountRepository, refresher TokenRefresher) (*CredentialVaultImpl, error) {
	cipher, err := utils.NewCredentialCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}
	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = utils.CredentialRefreshMargin
	}
	return &CredentialVaultImpl{
		cipher:    cipher,
		accounts:  accounts,
		refresher: refresher,
		margin:    margin,
		locks:     make(map[uint]*sync.Mutex),
		now:       utils.UTCNow,
	}, nil
}

func (v *CredentialVaultImpl) accountLock(accountID uint) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	lock, ok := v.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		v.locks[accountID] = lock
	}
	return lock
}

// GetValidCredential returns a decrypted access token, refreshing proactively
// when the token expires within the margin.
func (v *CredentialVaultImpl) GetValidCredential(ctx context.Context, account *models.EmailAccount) (string, error) {
	if account == nil {
		return "", fmt.Errorf("account is nil")
	}
	if account.Status == models.AccountStatusError {
		return "", fmt.Errorf("account %d: %w", account.ID, ErrReauthorizationRequired)
	}

	lock := v.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read inside the lock so a refresh done by a concurrent caller is
	// observed instead of repeated.
	fresh, err := v.accounts.ByID(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load account %d: %w", account.ID, err)
	}
	if fresh == nil {
		return "", fmt.Errorf("account %d not found", account.ID)
	}
	if fresh.Status == models.AccountStatusError {
		return "", fmt.Errorf("account %d: %w", fresh.ID, ErrReauthorizationRequired)
	}

	if v.now().Add(v.margin).Before(fresh.TokenExpiresAt) {
		token, err := v.cipher.OpenString(fresh.EncryptedAccessToken)
		if err != nil {
			return "", fmt.Errorf("account %d: %w: %v", fresh.ID, ErrCredentialCorrupt, err)
		}
		return token, nil
	}

	return v.refresh(ctx, fresh)
}

func (v *CredentialVaultImpl) refresh(ctx context.Context, account *models.EmailAccount) (string, error) {
	refreshToken, err := v.cipher.OpenString(account.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("account %d: %w: %v", account.ID, ErrCredentialCorrupt, err)
	}

	result, err := v.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		if IsAuthError(err) {
			// Mark the account so the scheduler stops queueing for it until
			// the operator reconnects.
			if setErr := v.accounts.SetStatus(ctx, account.ID, models.AccountStatusError); setErr != nil {
				return "", fmt.Errorf("failed to mark account %d errored: %v (refresh: %w)", account.ID, setErr, err)
			}
			return "", fmt.Errorf("account %d: %w", account.ID, ErrReauthorizationRequired)
		}
		return "", fmt.Errorf("failed to refresh credential for account %d: %w", account.ID, err)
	}

	expiresAt := v.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	encryptedAccess, err := v.cipher.SealString(result.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt refreshed token for account %d: %w", account.ID, err)
	}
	// Some backends rotate the refresh token on use; losing the rotated
	// value would make every later refresh fail. Keep the stored one only
	// when the response omits it.
	encryptedRefresh := account.EncryptedRefreshToken
	if result.RefreshToken != "" {
		encryptedRefresh, err = v.cipher.SealString(result.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt rotated refresh token for account %d: %w", account.ID, err)
		}
	}
	if err := v.accounts.UpdateCredentials(ctx, account.ID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token for account %d: %w", account.ID, err)
	}

	return result.AccessToken, nil
}

// StoreCredential encrypts a new token pair and persists it. Plaintext never
// reaches the database.
func (v *CredentialVaultImpl) StoreCredential(ctx context.Context, accountID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	encryptedAccess, err := v.cipher.SealString(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encryptedRefresh, err := v.cipher.SealString(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	if err := v.accounts.UpdateCredentials(ctx, accountID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return fmt.Errorf("failed to store credentials for account %d: %w", accountID, err)
	}
	return nil
}
