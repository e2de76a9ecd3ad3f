package dto

import (
	"time"
)

// DeliveryEventRequest is the decoded provider webhook payload. The raw body
// is verified against the HMAC signature before this is populated.
type DeliveryEventRequest struct {
	EventType         string     `json:"event_type" validate:"required,oneof=delivered opened replied clicked bounced spam_complaint unsubscribed"`
	ProviderMessageID string     `json:"provider_message_id" validate:"required,max=128"`
	OccurredAt        *time.Time `json:"occurred_at,omitempty"`

	// Reply continuation
	ThreadID *string `json:"thread_id,omitempty" validate:"omitempty,max=128"`

	// Bounce classification; permanent bounces also suppress the recipient
	BounceType *string `json:"bounce_type,omitempty" validate:"omitempty,oneof=permanent transient"`

	// Click metadata
	URL       *string `json:"url,omitempty" validate:"omitempty,max=2048"`
	IPAddress *string `json:"ip_address,omitempty" validate:"omitempty,max=64"`
	UserAgent *string `json:"user_agent,omitempty" validate:"omitempty,max=512"`
}

// DeliveryEventResponse reports whether the event was applied or dropped
type DeliveryEventResponse struct {
	Message string `json:"message"`
	Applied bool   `json:"applied"`
}
