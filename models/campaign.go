package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignType distinguishes reputation warmup sends from real outreach
type CampaignType string

const (
	CampaignTypeWarmup   CampaignType = "warmup"
	CampaignTypeOutreach CampaignType = "outreach"
)

// String returns the string representation of the type
func (t CampaignType) String() string {
	return string(t)
}

// Valid checks if the type is valid
func (t CampaignType) Valid() bool {
	switch t {
	case CampaignTypeWarmup, CampaignTypeOutreach:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignType
func (t *CampaignType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = CampaignType(v)
	case []byte:
		*t = CampaignType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignType
func (t CampaignType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid CampaignType: %s", t)
	}
	return string(t), nil
}

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive,
		CampaignStatusPaused, CampaignStatusCompleted:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// SendWindow overrides the global business-hours window for one campaign.
// Hours are in the campaign timezone; the zero value means "use defaults".
type SendWindow struct {
	Timezone  string `json:"timezone,omitempty"`
	StartHour int    `json:"start_hour,omitempty"`
	EndHour   int    `json:"end_hour,omitempty"`
}

// Value implements the driver.Valuer interface for SendWindow
func (w SendWindow) Value() (driver.Value, error) {
	return json.Marshal(w)
}

// Scan implements the sql.Scanner interface for SendWindow
func (w *SendWindow) Scan(value any) error {
	if value == nil {
		*w = SendWindow{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SendWindow", value)
	}

	return json.Unmarshal(bytes, w)
}

// Campaign represents an outbound email campaign
type Campaign struct {
	ID      uint           `gorm:"primaryKey" json:"id"`
	UUID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	OwnerID uint           `gorm:"not null;index:idx_campaigns_owner_id" json:"owner_id"`
	Type    CampaignType   `gorm:"type:campaign_type;not null" json:"type"`
	Status  CampaignStatus `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`
	Title   string         `gorm:"size:255;not null" json:"title"`

	// Exactly one connected account sends for this campaign
	AccountID uint `gorm:"not null;index:idx_campaigns_account_id" json:"account_id"`

	// Pacing
	DailyVolume int `gorm:"not null" json:"daily_volume"`

	// Outreach campaigns reference a prospect list and a personalization template
	ProspectListID  *uint   `gorm:"index:idx_campaigns_prospect_list_id" json:"prospect_list_id,omitempty"`
	TemplateSubject *string `gorm:"size:998" json:"template_subject,omitempty"`
	TemplateBody    *string `gorm:"type:text" json:"template_body,omitempty"`
	ReplyBody       *string `gorm:"type:text" json:"reply_body,omitempty"`

	// Optional per-campaign business-hours override
	SendWindow SendWindow `gorm:"type:jsonb" json:"send_window"`

	// Set only by the system, e.g. "bounce rate 6.0% exceeds threshold 5.0%"
	PauseReason *string `gorm:"size:255" json:"pause_reason,omitempty"`

	// Nil until the first scheduling cycle ran; used for ramp-up
	LastScheduledAt *time.Time `json:"last_scheduled_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignFilter provides filter fields for repository queries
type CampaignFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	OwnerID       *uint
	AccountID     *uint
	Type          *CampaignType
	Status        *CampaignStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
