package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AccountStatus is the connected-account credential state
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusError  AccountStatus = "error"
)

// String returns the string representation of the status
func (s AccountStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusError:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for AccountStatus
func (s *AccountStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = AccountStatus(v)
	case []byte:
		*s = AccountStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AccountStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for AccountStatus
func (s AccountStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid AccountStatus: %s", s)
	}
	return string(s), nil
}

// EmailAccount is a provider-connected sending identity. Its credential
// columns are owned exclusively by the credential vault and hold
// nonce-prefixed AEAD ciphertext, never plaintext.
type EmailAccount struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	OwnerID uint   `gorm:"not null;index:idx_email_accounts_owner_id" json:"owner_id"`
	Email   string `gorm:"size:320;not null;uniqueIndex:uk_email_accounts_email" json:"email"`

	// Provider backend key: gmail, ses, mock
	Provider string `gorm:"size:32;not null" json:"provider"`

	EncryptedAccessToken  []byte    `gorm:"type:bytea" json:"-"`
	EncryptedRefreshToken []byte    `gorm:"type:bytea" json:"-"`
	TokenExpiresAt        time.Time `json:"token_expires_at"`

	Status AccountStatus `gorm:"type:account_status;not null;default:'active';index:idx_email_accounts_status" json:"status"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (EmailAccount) TableName() string { return "email_accounts" }

// EmailAccountFilter provides filter fields for repository queries
type EmailAccountFilter struct {
	ID            *uint
	OwnerID       *uint
	Email         *string
	Provider      *string
	Status        *AccountStatus
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
}
