// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Campaign, error)
	ListActive(ctx context.Context) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	UpdateStatus(ctx context.Context, campaignID uint, status models.CampaignStatus, pauseReason *string) error
	// PauseIfActive atomically transitions active -> paused and reports
	// whether this call performed the transition. Repeated triggers on an
	// already-paused campaign are no-ops.
	PauseIfActive(ctx context.Context, campaignID uint, reason string) (bool, error)
	SetLastScheduledAt(ctx context.Context, campaignID uint, at time.Time) error
}

// QueuedMessageRepository defines operations for the durable send queue
type QueuedMessageRepository interface {
	Repository[models.QueuedMessage, models.QueuedMessageFilter]
	// ClaimDue atomically flips up to batchSize due pending rows to
	// processing, ordered by (priority desc, scheduled_for asc). Rows
	// claimed by a concurrent drain call are skipped, never double-claimed.
	ClaimDue(ctx context.Context, now time.Time, batchSize int) ([]*models.QueuedMessage, error)
	// ReclaimStale returns processing rows claimed before the threshold to
	// pending so a crashed dispatch cycle cannot strand them.
	ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	// Requeue returns a processing row to pending at a later instant without
	// consuming an attempt (credential unavailable, rate limited).
	Requeue(ctx context.Context, messageID uint, at time.Time) error
	// RetryLater consumes an attempt and schedules the next try.
	RetryLater(ctx context.Context, messageID uint, attempts int, at time.Time) error
	MarkSent(ctx context.Context, messageID uint) error
	MarkFailed(ctx context.Context, messageID uint, attempts int, errorMessage string) error
	CountForCampaignSince(ctx context.Context, campaignID uint, since time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int64, error)
}

// DeliveryLogRepository defines operations for delivery logs
type DeliveryLogRepository interface {
	Repository[models.DeliveryLog, models.DeliveryLogFilter]
	ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.DeliveryLog, error)
	// ByProviderMessageIDForUpdate locks the row for the enclosing
	// transaction so concurrent event handlers serialize.
	ByProviderMessageIDForUpdate(ctx context.Context, providerMessageID string) (*models.DeliveryLog, error)
	Update(ctx context.Context, log *models.DeliveryLog) error
	// WindowAggregate counts sends, bounces and spam complaints for a
	// campaign over a trailing window, for the health monitor.
	WindowAggregate(ctx context.Context, campaignID uint, since time.Time) (*models.DeliveryWindowAggregate, error)
	CountByStatusForCampaign(ctx context.Context, campaignID uint) (map[models.DeliveryStatus]int64, error)
}

// SuppressionRepository defines operations for the do-not-send list
type SuppressionRepository interface {
	Repository[models.SuppressionEntry, models.SuppressionEntryFilter]
	Exists(ctx context.Context, email string) (bool, error)
	// AddIfAbsent inserts the entry unless the address is already
	// suppressed; duplicate events must not produce duplicate rows.
	AddIfAbsent(ctx context.Context, entry *models.SuppressionEntry) (bool, error)
	Size(ctx context.Context) (int64, error)
}

// EmailAccountRepository defines operations for connected accounts
type EmailAccountRepository interface {
	Repository[models.EmailAccount, models.EmailAccountFilter]
	UpdateCredentials(ctx context.Context, accountID uint, encryptedAccess, encryptedRefresh []byte, expiresAt time.Time) error
	SetStatus(ctx context.Context, accountID uint, status models.AccountStatus) error
}

// ProspectRepository defines operations for prospect reads
type ProspectRepository interface {
	Repository[models.Prospect, models.ProspectFilter]
	// ListEligible returns not-yet-contacted prospects of a list.
	ListEligible(ctx context.Context, prospectListID uint, limit int) ([]*models.Prospect, error)
	MarkContacted(ctx context.Context, prospectIDs []uint, at time.Time) error
}

// AuditLogRepository defines operations for audit records
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
}
