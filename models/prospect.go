package models

import (
	"time"

	"github.com/lib/pq"
)

// Prospect is one imported contact in a prospect list. The pipeline only
// reads prospects; list CRUD and CSV import live outside this service.
type Prospect struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ProspectListID uint   `gorm:"not null;index:idx_prospects_prospect_list_id" json:"prospect_list_id"`
	Email          string `gorm:"size:320;not null;index:idx_prospects_email" json:"email"`
	FirstName      string `gorm:"size:128" json:"first_name"`
	LastName       string `gorm:"size:128" json:"last_name"`
	Company        string `gorm:"size:255" json:"company"`

	Tags pq.StringArray `gorm:"type:text[]" json:"tags"`

	// Set by the scheduler when a message for this prospect is enqueued,
	// so one campaign never contacts the same prospect twice
	LastContactedAt *time.Time `gorm:"index:idx_prospects_last_contacted_at" json:"last_contacted_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Prospect) TableName() string { return "prospects" }

// ProspectFilter provides filter fields for repository queries
type ProspectFilter struct {
	ID             *uint
	ProspectListID *uint
	Email          *string
	Contacted      *bool
}
