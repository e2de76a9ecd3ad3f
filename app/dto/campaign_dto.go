package dto

import (
	"time"
)

// SendWindowDTO overrides the default business-hours window for one campaign
type SendWindowDTO struct {
	Timezone  string `json:"timezone,omitempty" validate:"omitempty,max=64"`
	StartHour int    `json:"start_hour,omitempty" validate:"omitempty,min=0,max=23"`
	EndHour   int    `json:"end_hour,omitempty" validate:"omitempty,min=1,max=24"`
}

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	OwnerID         uint           `json:"-"`
	Title           string         `json:"title" validate:"required,max=255"`
	Type            string         `json:"type" validate:"required,oneof=warmup outreach"`
	AccountID       uint           `json:"account_id" validate:"required"`
	DailyVolume     int            `json:"daily_volume" validate:"required,min=1,max=2000"`
	ProspectListID  *uint          `json:"prospect_list_id,omitempty"`
	TemplateSubject *string        `json:"template_subject,omitempty" validate:"omitempty,max=998"`
	TemplateBody    *string        `json:"template_body,omitempty"`
	ReplyBody       *string        `json:"reply_body,omitempty"`
	SendWindow      *SendWindowDTO `json:"send_window,omitempty"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	Message   string `json:"message"`
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// CampaignTransitionRequest represents a lifecycle transition trigger
type CampaignTransitionRequest struct {
	UUID    string  `json:"-"`
	OwnerID uint    `json:"-"`
	Reason  *string `json:"reason,omitempty" validate:"omitempty,max=255"`
}

// CampaignTransitionResponse represents the outcome of a lifecycle transition
type CampaignTransitionResponse struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
	Status  string `json:"status"`
}

// ListCampaignsRequest represents the request to list campaigns of an owner
type ListCampaignsRequest struct {
	OwnerID uint    `json:"-"`
	Status  *string `json:"status,omitempty" validate:"omitempty,oneof=draft active paused completed"`
	Page    int     `json:"page" validate:"omitempty,min=1"`
	Limit   int     `json:"limit" validate:"omitempty,min=1,max=100"`
}

// CampaignDTO represents one campaign in list responses
type CampaignDTO struct {
	ID              uint       `json:"id"`
	UUID            string     `json:"uuid"`
	Title           string     `json:"title"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	AccountID       uint       `json:"account_id"`
	DailyVolume     int        `json:"daily_volume"`
	PauseReason     *string    `json:"pause_reason,omitempty"`
	LastScheduledAt *time.Time `json:"last_scheduled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ListCampaignsResponse represents the response to list campaigns
type ListCampaignsResponse struct {
	Message   string        `json:"message"`
	Campaigns []CampaignDTO `json:"campaigns"`
	Total     int64         `json:"total"`
}

// CampaignReportRequest represents the request for a delivery report export
type CampaignReportRequest struct {
	UUID    string `json:"-"`
	OwnerID uint   `json:"-"`
}
