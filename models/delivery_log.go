package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeliveryStatus tracks the highest-priority event observed for a message
type DeliveryStatus string

const (
	DeliveryStatusSent         DeliveryStatus = "sent"
	DeliveryStatusDelivered    DeliveryStatus = "delivered"
	DeliveryStatusOpened       DeliveryStatus = "opened"
	DeliveryStatusReplied      DeliveryStatus = "replied"
	DeliveryStatusUnsubscribed DeliveryStatus = "unsubscribed"
	DeliveryStatusBounced      DeliveryStatus = "bounced"
	DeliveryStatusSpam         DeliveryStatus = "spam"
)

// String returns the string representation of the status
func (s DeliveryStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusOpened,
		DeliveryStatusReplied, DeliveryStatusUnsubscribed,
		DeliveryStatusBounced, DeliveryStatusSpam:
		return true
	default:
		return false
	}
}

// Rank orders statuses so out-of-order events never downgrade the row.
// Negative reputation outcomes outrank engagement.
func (s DeliveryStatus) Rank() int {
	switch s {
	case DeliveryStatusSent:
		return 0
	case DeliveryStatusDelivered:
		return 1
	case DeliveryStatusOpened:
		return 2
	case DeliveryStatusReplied:
		return 3
	case DeliveryStatusUnsubscribed:
		return 4
	case DeliveryStatusBounced:
		return 5
	case DeliveryStatusSpam:
		return 6
	default:
		return -1
	}
}

// Scan implements the sql.Scanner interface for DeliveryStatus
func (s *DeliveryStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = DeliveryStatus(v)
	case []byte:
		*s = DeliveryStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DeliveryStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for DeliveryStatus
func (s DeliveryStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid DeliveryStatus: %s", s)
	}
	return string(s), nil
}

// ClickRecord is one entry of the bounded per-message click log
type ClickRecord struct {
	URL       string    `json:"url"`
	ClickedAt time.Time `json:"clicked_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// ClickLog is the JSONB append log of clicks
type ClickLog []ClickRecord

// Value implements the driver.Valuer interface for ClickLog
func (l ClickLog) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(ClickLog{})
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for ClickLog
func (l *ClickLog) Scan(value any) error {
	if value == nil {
		*l = ClickLog{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ClickLog", value)
	}

	return json.Unmarshal(bytes, l)
}

// DeliveryLog records the post-send fate of one dispatched message,
// keyed by the provider's message identifier. Counters only ever grow;
// first-seen timestamps are set once, last-seen variants are refreshed.
type DeliveryLog struct {
	ID                uint    `gorm:"primaryKey" json:"id"`
	MessageID         uint    `gorm:"not null;index:idx_delivery_logs_message_id" json:"message_id"`
	CampaignID        uint    `gorm:"not null;index:idx_delivery_logs_campaign_id" json:"campaign_id"`
	AccountID         uint    `gorm:"not null;index:idx_delivery_logs_account_id" json:"account_id"`
	Recipient         string  `gorm:"size:320;not null;index:idx_delivery_logs_recipient" json:"recipient"`
	ProviderMessageID string  `gorm:"size:128;not null;uniqueIndex:uk_delivery_logs_provider_message_id" json:"provider_message_id"`
	ThreadID          *string `gorm:"size:128" json:"thread_id,omitempty"`

	Status DeliveryStatus `gorm:"type:delivery_status;not null;default:'sent';index:idx_delivery_logs_status" json:"status"`

	OpenCount  int `gorm:"not null;default:0" json:"open_count"`
	ReplyCount int `gorm:"not null;default:0" json:"reply_count"`
	ClickCount int `gorm:"not null;default:0" json:"click_count"`

	SentAt         time.Time  `gorm:"not null;index:idx_delivery_logs_sent_at" json:"sent_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	FirstOpenedAt  *time.Time `json:"first_opened_at,omitempty"`
	LastOpenedAt   *time.Time `json:"last_opened_at,omitempty"`
	FirstRepliedAt *time.Time `json:"first_replied_at,omitempty"`
	LastRepliedAt  *time.Time `json:"last_replied_at,omitempty"`
	BouncedAt      *time.Time `json:"bounced_at,omitempty"`
	SpamFlaggedAt  *time.Time `json:"spam_flagged_at,omitempty"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`

	Clicks ClickLog `gorm:"type:jsonb" json:"clicks"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (DeliveryLog) TableName() string { return "delivery_logs" }

// DeliveryLogFilter provides filter fields for repository queries
type DeliveryLogFilter struct {
	ID            *uint
	CampaignID    *uint
	AccountID     *uint
	Recipient     *string
	Status        *DeliveryStatus
	SentAfter     *time.Time
	SentBefore    *time.Time
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// DeliveryWindowAggregate summarizes outcomes over a trailing window
type DeliveryWindowAggregate struct {
	TotalSent      int64
	Bounced        int64
	SpamComplaints int64
}
