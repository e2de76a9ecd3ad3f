package scheduler

import (
	"testing"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHours(t *testing.T, tz string, start, end int) *BusinessHours {
	t.Helper()
	h, err := NewBusinessHours(tz, start, end)
	require.NoError(t, err)
	return h
}

func TestNewBusinessHoursValidation(t *testing.T) {
	_, err := NewBusinessHours("Not/AZone", 9, 17)
	assert.Error(t, err)

	_, err = NewBusinessHours("UTC", 17, 9)
	assert.Error(t, err)

	_, err = NewBusinessHours("UTC", -1, 17)
	assert.Error(t, err)
}

func TestBusinessHoursContains(t *testing.T) {
	hours := mustHours(t, "UTC", 9, 17)

	// Wednesday 2026-01-07
	assert.True(t, hours.Contains(time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)))
	assert.True(t, hours.Contains(time.Date(2026, 1, 7, 16, 59, 0, 0, time.UTC)))
	assert.False(t, hours.Contains(time.Date(2026, 1, 7, 17, 0, 0, 0, time.UTC)))
	assert.False(t, hours.Contains(time.Date(2026, 1, 7, 8, 59, 0, 0, time.UTC)))

	// Saturday and Sunday
	assert.False(t, hours.Contains(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)))
	assert.False(t, hours.Contains(time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)))
}

func TestBusinessHoursNext(t *testing.T) {
	hours := mustHours(t, "UTC", 9, 17)

	t.Run("inside window is unchanged", func(t *testing.T) {
		in := time.Date(2026, 1, 7, 11, 30, 0, 0, time.UTC)
		assert.True(t, hours.Next(in).Equal(in))
	})

	t.Run("early morning advances to same-day start", func(t *testing.T) {
		in := time.Date(2026, 1, 7, 6, 0, 0, 0, time.UTC)
		assert.True(t, hours.Next(in).Equal(time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)))
	})

	t.Run("evening advances to next day", func(t *testing.T) {
		in := time.Date(2026, 1, 7, 18, 0, 0, 0, time.UTC)
		assert.True(t, hours.Next(in).Equal(time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)))
	})

	t.Run("friday evening advances past the weekend", func(t *testing.T) {
		in := time.Date(2026, 1, 9, 18, 0, 0, 0, time.UTC)
		assert.True(t, hours.Next(in).Equal(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)))
	})

	t.Run("saturday advances to monday", func(t *testing.T) {
		in := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		assert.True(t, hours.Next(in).Equal(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)))
	})
}

func TestHoursForCampaign(t *testing.T) {
	cfg := &config.SchedulerConfig{DefaultTimezone: "UTC", StartHour: 9, EndHour: 17}

	t.Run("default window", func(t *testing.T) {
		campaign := &models.Campaign{}
		hours, err := HoursForCampaign(campaign, cfg)
		require.NoError(t, err)
		assert.Equal(t, 9, hours.StartHour)
		assert.Equal(t, 17, hours.EndHour)
	})

	t.Run("campaign override", func(t *testing.T) {
		campaign := &models.Campaign{SendWindow: models.SendWindow{Timezone: "America/New_York", StartHour: 8, EndHour: 12}}
		hours, err := HoursForCampaign(campaign, cfg)
		require.NoError(t, err)
		assert.Equal(t, 8, hours.StartHour)
		assert.Equal(t, 12, hours.EndHour)
		assert.Equal(t, "America/New_York", hours.Location.String())
	})

	t.Run("timezone-only override keeps default hours", func(t *testing.T) {
		campaign := &models.Campaign{SendWindow: models.SendWindow{Timezone: "Europe/Berlin"}}
		hours, err := HoursForCampaign(campaign, cfg)
		require.NoError(t, err)
		assert.Equal(t, 9, hours.StartHour)
		assert.Equal(t, "Europe/Berlin", hours.Location.String())
	})
}
