package businessflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	memtest "github.com/amirphl/Susanoo/testing"
	"github.com/amirphl/Susanoo/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthFixture struct {
	flow       *CampaignHealthFlowImpl
	campaigns  *memtest.MemoryCampaignRepo
	deliveries *memtest.MemoryDeliveryLogRepo
	audits     *memtest.MemoryAuditLogRepo
	campaign   *models.Campaign
}

func newHealthFixture(t *testing.T) *healthFixture {
	t.Helper()
	f := &healthFixture{
		campaigns:  memtest.NewMemoryCampaignRepo(),
		deliveries: memtest.NewMemoryDeliveryLogRepo(),
		audits:     memtest.NewMemoryAuditLogRepo(),
	}
	f.campaign = memtest.NewTestCampaign(1)
	require.NoError(t, f.campaigns.Save(context.Background(), f.campaign))

	f.flow = NewCampaignHealthFlow(f.campaigns, f.deliveries, f.audits, config.HealthConfig{
		Window:              24 * time.Hour,
		BounceRateThreshold: 0.05,
		SpamRateThreshold:   0.01,
	})
	return f
}

// seedOutcomes writes sent/bounced/spam delivery rows inside the window
func (f *healthFixture) seedOutcomes(t *testing.T, sent, bounced, spam int) {
	t.Helper()
	ctx := context.Background()
	at := utils.UTCNow().Add(-time.Hour)

	n := 0
	for i := 0; i < sent; i++ {
		status := models.DeliveryStatusSent
		if i < bounced {
			status = models.DeliveryStatusBounced
		} else if i < bounced+spam {
			status = models.DeliveryStatusSpam
		}
		n++
		_, err := memtest.SeedDeliveryLog(ctx, f.deliveries, f.campaign.ID, 1, fmt.Sprintf("pm-%d", n), status, at)
		require.NoError(t, err)
	}
}

func TestEvaluateHealthyCampaignStaysActive(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.seedOutcomes(t, 100, 2, 0)

	eval, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, eval.Paused)
	assert.InDelta(t, 0.02, eval.BounceRate, 1e-9)

	stored, err := f.campaigns.ByID(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusActive, stored.Status)
}

func TestEvaluateNoSendsShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)

	eval, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, eval.Paused)
	assert.Zero(t, eval.TotalSent)
	assert.Zero(t, eval.BounceRate)
}

func TestEvaluateBounceRatePausesCampaign(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.seedOutcomes(t, 100, 6, 0)

	eval, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, eval.Paused)
	assert.Contains(t, eval.Reason, "bounce rate 6.0%")

	stored, err := f.campaigns.ByID(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)
	require.NotNil(t, stored.PauseReason)
	assert.Contains(t, *stored.PauseReason, "bounce rate")

	action := models.AuditActionCampaignAutoPaused
	audits, err := f.audits.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestEvaluateAlreadyPausedDoesNotRetrigger(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.seedOutcomes(t, 100, 7, 0)

	first, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, first.Paused)

	// A further bounce re-evaluation sees the same breach but pauses nothing
	second, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, second.Paused)

	action := models.AuditActionCampaignAutoPaused
	audits, err := f.audits.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestEvaluateSpamRatePausesCampaign(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)
	f.seedOutcomes(t, 100, 0, 2)

	eval, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, eval.Paused)
	assert.Contains(t, eval.Reason, "spam rate 2.0%")
}

func TestEvaluateIgnoresOutcomesOutsideWindow(t *testing.T) {
	ctx := context.Background()
	f := newHealthFixture(t)

	// Old bounces fall outside the trailing window
	old := utils.UTCNow().Add(-48 * time.Hour)
	for i := 0; i < 10; i++ {
		_, err := memtest.SeedDeliveryLog(ctx, f.deliveries, f.campaign.ID, 1, fmt.Sprintf("old-%d", i), models.DeliveryStatusBounced, old)
		require.NoError(t, err)
	}
	f.seedOutcomes(t, 50, 0, 0)

	eval, err := f.flow.Evaluate(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, eval.Paused)
	assert.Equal(t, int64(50), eval.TotalSent)
	assert.Zero(t, eval.Bounced)
}
