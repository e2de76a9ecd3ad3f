package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SuppressionSource indicates where the do-not-send signal originated
type SuppressionSource string

const (
	SuppressionSourceUnsubscribe   SuppressionSource = "unsubscribe"
	SuppressionSourceBounce        SuppressionSource = "bounce"
	SuppressionSourceSpamComplaint SuppressionSource = "spam_complaint"
	SuppressionSourceManual        SuppressionSource = "manual"
)

// String returns the string representation of the source
func (s SuppressionSource) String() string {
	return string(s)
}

// Valid checks if the source is valid
func (s SuppressionSource) Valid() bool {
	switch s {
	case SuppressionSourceUnsubscribe, SuppressionSourceBounce,
		SuppressionSourceSpamComplaint, SuppressionSourceManual:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SuppressionSource
func (s *SuppressionSource) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = SuppressionSource(v)
	case []byte:
		*s = SuppressionSource(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SuppressionSource", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SuppressionSource
func (s SuppressionSource) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid SuppressionSource: %s", s)
	}
	return string(s), nil
}

// SuppressionEntry is a permanent do-not-send record. Presence of an entry
// is a hard veto on sending to that address regardless of campaign.
type SuppressionEntry struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Email     string            `gorm:"size:320;not null;uniqueIndex:uk_suppression_entries_email" json:"email"`
	Reason    string            `gorm:"size:512" json:"reason"`
	Source    SuppressionSource `gorm:"type:suppression_source;not null;index:idx_suppression_entries_source" json:"source"`
	CreatedAt time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (SuppressionEntry) TableName() string { return "suppression_entries" }

// SuppressionEntryFilter provides filter fields for repository queries
type SuppressionEntryFilter struct {
	ID            *uint
	Email         *string
	Source        *SuppressionSource
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
