package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	memtest "github.com/amirphl/Susanoo/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	scheduler    *CampaignScheduler
	campaigns    *memtest.MemoryCampaignRepo
	queue        *memtest.MemoryQueuedMessageRepo
	prospects    *memtest.MemoryProspectRepo
	accounts     *memtest.MemoryEmailAccountRepo
	suppressions *memtest.MemorySuppressionRepo
}

// Wednesday mid-morning, inside the default window
var schedulerNow = time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

func newSchedulerFixture(t *testing.T, cfg config.SchedulerConfig) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		campaigns:    memtest.NewMemoryCampaignRepo(),
		queue:        memtest.NewMemoryQueuedMessageRepo(),
		prospects:    memtest.NewMemoryProspectRepo(),
		accounts:     memtest.NewMemoryEmailAccountRepo(),
		suppressions: memtest.NewMemorySuppressionRepo(),
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if cfg.EndHour == 0 {
		cfg.StartHour, cfg.EndHour = 9, 17
	}
	if cfg.RampUpVolume == 0 {
		cfg.RampUpVolume = 100
	}
	f.scheduler = NewCampaignScheduler(f.campaigns, f.queue, f.prospects, f.accounts, f.suppressions, nil, cfg, nil)
	f.scheduler.now = func() time.Time { return schedulerNow }
	f.scheduler.runTx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	return f
}

func (f *schedulerFixture) seedCampaign(t *testing.T, dailyVolume int, prospectEmails ...string) *models.Campaign {
	t.Helper()
	ctx := context.Background()
	cipher := memtest.NewTestCipher()
	account := memtest.NewTestAccount(cipher, "sender@example.com", schedulerNow.Add(time.Hour))
	require.NoError(t, f.accounts.Save(ctx, account))

	campaign := memtest.NewTestCampaign(account.ID)
	campaign.DailyVolume = dailyVolume
	// Not a first cycle unless the test clears it
	campaign.LastScheduledAt = &schedulerNow
	require.NoError(t, f.campaigns.Save(ctx, campaign))

	for _, email := range prospectEmails {
		require.NoError(t, f.prospects.Save(ctx, &models.Prospect{
			ProspectListID: *campaign.ProspectListID,
			Email:          email,
			FirstName:      "Ada",
			Company:        "Acme",
		}))
	}
	return campaign
}

func TestScheduleCampaignBoundedByEligible(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedCampaign(t, 5, "a@example.com", "b@example.com", "c@example.com")

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 3, scheduled)

	rows, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{CampaignID: &campaign.ID}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	hours := mustHours(t, "UTC", 9, 17)
	for _, row := range rows {
		assert.Equal(t, models.QueueStatusPending, row.Status)
		assert.True(t, hours.Contains(row.ScheduledFor), "scheduled at %s", row.ScheduledFor)
		assert.NotEmpty(t, row.TrackingID)
	}
}

func TestScheduleCampaignRespectsDailyBudget(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedCampaign(t, 3, "a@example.com", "b@example.com")

	// Two messages already queued today
	for i := 0; i < 2; i++ {
		msg := memtest.NewTestQueuedMessage(campaign.ID, campaign.AccountID, "x@example.com", schedulerNow)
		msg.CreatedAt = schedulerNow.Add(-time.Hour)
		require.NoError(t, f.queue.Save(ctx, msg))
	}

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	// Budget exhausted now
	scheduled, err = f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)
}

func TestScheduleCampaignRampUpCapsFirstCycle(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{RampUpVolume: 2})
	campaign := f.seedCampaign(t, 10, "a@example.com", "b@example.com", "c@example.com", "d@example.com")
	campaign.LastScheduledAt = nil
	require.NoError(t, f.campaigns.Save(ctx, campaign))

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 2, scheduled)

	// LastScheduledAt is set so the next cycle is uncapped
	stored, err := f.campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastScheduledAt)

	scheduled, err = f.scheduler.ScheduleCampaign(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, 2, scheduled)
}

func TestScheduleCampaignSkipsSuppressedAndInvalid(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedCampaign(t, 10, "good@example.com", "blocked@example.com", "not-an-address")

	_, err := f.suppressions.AddIfAbsent(ctx, &models.SuppressionEntry{
		Email:  "blocked@example.com",
		Source: models.SuppressionSourceUnsubscribe,
	})
	require.NoError(t, err)

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	rows, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{CampaignID: &campaign.ID}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "good@example.com", rows[0].Recipient)

	// Skipped prospects are out of rotation, a second cycle finds nothing
	scheduled, err = f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)
}

func TestScheduleCampaignRendersTemplate(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedCampaign(t, 5, "ada@example.com")

	rows, err := f.prospects.ByFilter(ctx, models.ProspectFilter{}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	require.Equal(t, 1, scheduled)

	queued, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{CampaignID: &campaign.ID}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "Quick question about Acme", queued[0].Subject)
	assert.Contains(t, queued[0].Body, "Hi Ada")
}

func TestScheduleCampaignSkipsErroredAccount(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedCampaign(t, 5, "a@example.com")
	require.NoError(t, f.accounts.SetStatus(ctx, campaign.AccountID, models.AccountStatusError))

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)
}

func TestRunOnceCollectsPerCampaignErrors(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	healthy := f.seedCampaign(t, 5, "a@example.com")

	broken := f.seedCampaign(t, 5)
	broken.ProspectListID = nil
	require.NoError(t, f.campaigns.Save(ctx, broken))

	err := f.scheduler.RunOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no prospect source")

	// The healthy campaign was still scheduled
	rows, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{CampaignID: &healthy.ID}, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func (f *schedulerFixture) seedWarmupCampaign(t *testing.T, dailyVolume int, peerEmails ...string) *models.Campaign {
	t.Helper()
	ctx := context.Background()
	cipher := memtest.NewTestCipher()
	sender := memtest.NewTestAccount(cipher, "warm-sender@example.com", schedulerNow.Add(time.Hour))
	require.NoError(t, f.accounts.Save(ctx, sender))
	for _, email := range peerEmails {
		require.NoError(t, f.accounts.Save(ctx, memtest.NewTestAccount(cipher, email, schedulerNow.Add(time.Hour))))
	}

	campaign := memtest.NewTestCampaign(sender.ID)
	campaign.Type = models.CampaignTypeWarmup
	campaign.Title = "Test Warmup"
	campaign.ProspectListID = nil
	campaign.DailyVolume = dailyVolume
	campaign.LastScheduledAt = &schedulerNow
	require.NoError(t, f.campaigns.Save(ctx, campaign))
	return campaign
}

func TestScheduleWarmupSendsToPeerAccounts(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedWarmupCampaign(t, 2, "peer-a@example.com", "peer-b@example.com", "peer-c@example.com")

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 2, scheduled)

	rows, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{CampaignID: &campaign.ID}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	peers := map[string]bool{"peer-a@example.com": true, "peer-b@example.com": true, "peer-c@example.com": true}
	for _, row := range rows {
		assert.True(t, peers[row.Recipient], "unexpected recipient %s", row.Recipient)
		assert.NotEqual(t, "warm-sender@example.com", row.Recipient)
		assert.Equal(t, campaign.AccountID, row.AccountID)
		assert.Equal(t, models.QueueStatusPending, row.Status)
	}
	assert.NotEqual(t, rows[0].Recipient, rows[1].Recipient)
}

func TestScheduleWarmupWithoutPeersSkips(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedWarmupCampaign(t, 2)

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)

	// RunOnce does not report the idle warmup as a failure either
	require.NoError(t, f.scheduler.RunOnce(ctx))
}

func TestScheduleWarmupExcludesErroredAndSuppressedPeers(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, config.SchedulerConfig{})
	campaign := f.seedWarmupCampaign(t, 5, "peer-a@example.com", "peer-b@example.com", "peer-c@example.com")

	accounts, err := f.accounts.ByFilter(ctx, models.EmailAccountFilter{}, "", 0, 0)
	require.NoError(t, err)
	for _, account := range accounts {
		if account.Email == "peer-c@example.com" {
			require.NoError(t, f.accounts.SetStatus(ctx, account.ID, models.AccountStatusError))
		}
	}
	require.NoError(t, f.suppressions.Save(ctx, &models.SuppressionEntry{Email: "peer-b@example.com", Source: models.SuppressionSourceManual}))

	scheduled, err := f.scheduler.ScheduleCampaign(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	rows, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{CampaignID: &campaign.ID}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "peer-a@example.com", rows[0].Recipient)
}
