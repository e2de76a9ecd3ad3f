package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
)

// TestEncryptionKey is a fixed 32-byte hex key for test ciphers
const TestEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// NewTestCipher creates a credential cipher with the fixed test key
func NewTestCipher() *utils.CredentialCipher {
	cipher, err := utils.NewCredentialCipher(TestEncryptionKey)
	if err != nil {
		panic(fmt.Sprintf("test cipher init: %v", err))
	}
	return cipher
}

// NewTestCampaign builds an active outreach campaign with sane defaults
func NewTestCampaign(accountID uint) *models.Campaign {
	listID := uint(1)
	subject := "Quick question about {{company}}"
	body := "<p>Hi {{first_name}},</p>"
	return &models.Campaign{
		UUID:            uuid.New(),
		OwnerID:         1,
		Type:            models.CampaignTypeOutreach,
		Status:          models.CampaignStatusActive,
		Title:           "Test Outreach",
		AccountID:       accountID,
		DailyVolume:     50,
		ProspectListID:  &listID,
		TemplateSubject: &subject,
		TemplateBody:    &body,
		CreatedAt:       utils.UTCNow(),
	}
}

// NewTestAccount builds an active account with encrypted credentials that
// expire at the given instant
func NewTestAccount(cipher *utils.CredentialCipher, email string, expiresAt time.Time) *models.EmailAccount {
	access, err := cipher.SealString("access-" + email)
	if err != nil {
		panic(err)
	}
	refresh, err := cipher.SealString("refresh-" + email)
	if err != nil {
		panic(err)
	}
	return &models.EmailAccount{
		OwnerID:               1,
		Email:                 email,
		Provider:              "mock",
		EncryptedAccessToken:  access,
		EncryptedRefreshToken: refresh,
		TokenExpiresAt:        expiresAt,
		Status:                models.AccountStatusActive,
	}
}

// NewTestQueuedMessage builds a pending message due at the given instant
func NewTestQueuedMessage(campaignID, accountID uint, recipient string, due time.Time) *models.QueuedMessage {
	return &models.QueuedMessage{
		CampaignID:   campaignID,
		AccountID:    accountID,
		TrackingID:   uuid.New().String(),
		Recipient:    recipient,
		Subject:      "Test subject",
		Body:         "<p>Test body</p>",
		Priority:     0,
		Attempts:     0,
		MaxAttempts:  utils.DefaultMaxAttempts,
		ScheduledFor: due,
		Status:       models.QueueStatusPending,
	}
}

// SeedDeliveryLog stores a delivery log row for reconciliation tests
func SeedDeliveryLog(ctx context.Context, repo *MemoryDeliveryLogRepo, campaignID, accountID uint, providerMessageID string, status models.DeliveryStatus, sentAt time.Time) (*models.DeliveryLog, error) {
	log := &models.DeliveryLog{
		MessageID:         1,
		CampaignID:        campaignID,
		AccountID:         accountID,
		Recipient:         "prospect@example.com",
		ProviderMessageID: providerMessageID,
		Status:            status,
		SentAt:            sentAt,
	}
	if err := repo.Save(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}
