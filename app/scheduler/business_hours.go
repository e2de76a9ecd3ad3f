// Package scheduler runs the background workers that pace campaigns and drain the send queue
package scheduler

import (
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
)

// BusinessHours is a weekday hour window in a fixed timezone. Sends are only
// scheduled inside it.
type BusinessHours struct {
	Location  *time.Location
	StartHour int
	EndHour   int
}

// NewBusinessHours validates and builds a window
func NewBusinessHours(timezone string, startHour, endHour int) (*BusinessHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	if startHour < 0 || startHour > 23 {
		return nil, fmt.Errorf("start hour %d out of range", startHour)
	}
	if endHour <= startHour || endHour > 24 {
		return nil, fmt.Errorf("end hour %d must be after start hour %d and at most 24", endHour, startHour)
	}
	return &BusinessHours{Location: loc, StartHour: startHour, EndHour: endHour}, nil
}

// HoursForCampaign resolves the effective window for a campaign, preferring
// its own send window override over the configured default.
func HoursForCampaign(campaign *models.Campaign, cfg *config.SchedulerConfig) (*BusinessHours, error) {
	w := campaign.SendWindow
	if w.Timezone != "" || w.StartHour != 0 || w.EndHour != 0 {
		tz := w.Timezone
		if tz == "" {
			tz = cfg.DefaultTimezone
		}
		start, end := w.StartHour, w.EndHour
		if end == 0 {
			start, end = cfg.StartHour, cfg.EndHour
		}
		return NewBusinessHours(tz, start, end)
	}
	return NewBusinessHours(cfg.DefaultTimezone, cfg.StartHour, cfg.EndHour)
}

// Contains reports whether t falls inside the window
func (b *BusinessHours) Contains(t time.Time) bool {
	local := t.In(b.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := local.Hour()
	return h >= b.StartHour && h < b.EndHour
}

// Next returns t unchanged when it falls inside the window, otherwise the
// start of the next valid business-hour window.
func (b *BusinessHours) Next(t time.Time) time.Time {
	local := t.In(b.Location)
	if b.Contains(local) {
		return local
	}

	// Same-day window has not opened yet
	if b.isWeekday(local) && local.Hour() < b.StartHour {
		return b.startOfWindow(local)
	}

	// Advance day by day until a weekday
	next := b.startOfWindow(local.AddDate(0, 0, 1))
	for !b.isWeekday(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (b *BusinessHours) isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (b *BusinessHours) startOfWindow(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), b.StartHour, 0, 0, 0, b.Location)
}
