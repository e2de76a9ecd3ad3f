// Package models contains domain entities for the outbound delivery pipeline
package models

import (
	"encoding/json"
	"time"
)

// AuditLog records explicit, human-readable state transitions. Auto-pauses
// by the health monitor always land here with the triggering metric.
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CampaignID   *uint           `gorm:"index:idx_audit_campaign_id" json:"campaign_id,omitempty"`
	AccountID    *uint           `gorm:"index:idx_audit_account_id" json:"account_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionCampaignCreated     = "campaign_created"
	AuditActionCampaignActivated   = "campaign_activated"
	AuditActionCampaignPaused      = "campaign_paused"
	AuditActionCampaignAutoPaused  = "campaign_auto_paused"
	AuditActionCampaignCompleted   = "campaign_completed"
	AuditActionAccountReauthNeeded = "account_reauthorization_required"
	AuditActionSuppressionAdded    = "suppression_added"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	CampaignID    *uint
	AccountID     *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
