package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// QueueStatus enumerates the lifecycle of a queued outbound message
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusFailed     QueueStatus = "failed"
)

// String returns the string representation of the status
func (s QueueStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusSent, QueueStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusSent || s == QueueStatusFailed
}

// Scan implements the sql.Scanner interface for QueueStatus
func (s *QueueStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = QueueStatus(v)
	case []byte:
		*s = QueueStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into QueueStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for QueueStatus
func (s QueueStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid QueueStatus: %s", s)
	}
	return string(s), nil
}

// QueuedMessage is one durable unit of outbound work. Created by the
// scheduler in pending status, claimed and finalized by the dispatcher.
type QueuedMessage struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CampaignID uint   `gorm:"not null;index:idx_queued_messages_campaign_id" json:"campaign_id"`
	AccountID  uint   `gorm:"not null;index:idx_queued_messages_account_id" json:"account_id"`
	TrackingID string `gorm:"size:64;not null;index:idx_queued_messages_tracking_id" json:"tracking_id"`

	Recipient string `gorm:"size:320;not null" json:"recipient"`
	Subject   string `gorm:"size:998;not null" json:"subject"`
	Body      string `gorm:"type:text;not null" json:"body"`

	// Reply continuations carry the provider conversation thread
	ThreadID *string `gorm:"size:128" json:"thread_id,omitempty"`

	Priority     int         `gorm:"not null;default:0;index:idx_queued_messages_priority" json:"priority"`
	Attempts     int         `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts  int         `gorm:"not null;default:3" json:"max_attempts"`
	ScheduledFor time.Time   `gorm:"not null;index:idx_queued_messages_scheduled_for" json:"scheduled_for"`
	Status       QueueStatus `gorm:"type:queue_status;not null;default:'pending';index:idx_queued_messages_status" json:"status"`
	ErrorMessage *string     `gorm:"size:1024" json:"error_message,omitempty"`

	// Set when the dispatcher claims the row; stale claims are reclaimed
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_queued_messages_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (QueuedMessage) TableName() string { return "queued_messages" }

// QueuedMessageFilter provides filter fields for repository queries
type QueuedMessageFilter struct {
	ID            *uint
	CampaignID    *uint
	AccountID     *uint
	Recipient     *string
	Status        *QueueStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
