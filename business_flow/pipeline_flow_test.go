package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/app/scheduler"
	"github.com/amirphl/Susanoo/models"
	memtest "github.com/amirphl/Susanoo/testing"
	"github.com/amirphl/Susanoo/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enqueuerStub struct {
	scheduled int
	calls     []uint
}

func (e *enqueuerStub) ScheduleCampaign(_ context.Context, campaign *models.Campaign) (int, error) {
	e.calls = append(e.calls, campaign.ID)
	return e.scheduled, nil
}

type drainerStub struct {
	stats      scheduler.DrainStats
	batchSizes []int
}

func (d *drainerStub) DrainBatch(_ context.Context, batchSize int) (scheduler.DrainStats, error) {
	d.batchSizes = append(d.batchSizes, batchSize)
	return d.stats, nil
}

type pipelineFixture struct {
	flow         PipelineFlow
	campaigns    *memtest.MemoryCampaignRepo
	queue        *memtest.MemoryQueuedMessageRepo
	suppressions *memtest.MemorySuppressionRepo
	enqueuer     *enqueuerStub
	drainer      *drainerStub
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		campaigns:    memtest.NewMemoryCampaignRepo(),
		queue:        memtest.NewMemoryQueuedMessageRepo(),
		suppressions: memtest.NewMemorySuppressionRepo(),
		enqueuer:     &enqueuerStub{scheduled: 4},
		drainer:      &drainerStub{stats: scheduler.DrainStats{Claimed: 3, Sent: 2, Failed: 1}},
	}
	f.flow = NewPipelineFlow(f.campaigns, f.queue, f.suppressions, f.enqueuer, f.drainer)
	return f
}

func TestEnqueueTriggersSchedulingForActiveCampaign(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	campaign := memtest.NewTestCampaign(1)
	require.NoError(t, f.campaigns.Save(ctx, campaign))

	resp, err := f.flow.Enqueue(ctx, &dto.EnqueueRequest{UUID: campaign.UUID.String(), OwnerID: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Scheduled)
	require.Len(t, f.enqueuer.calls, 1)
	assert.Equal(t, campaign.ID, f.enqueuer.calls[0])
}

func TestEnqueueRejectsInactiveCampaign(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	campaign := memtest.NewTestCampaign(1)
	campaign.Status = models.CampaignStatusPaused
	require.NoError(t, f.campaigns.Save(ctx, campaign))

	_, err := f.flow.Enqueue(ctx, &dto.EnqueueRequest{UUID: campaign.UUID.String(), OwnerID: 1})
	assert.ErrorIs(t, err, ErrCampaignNotActive)
	assert.Empty(t, f.enqueuer.calls)
}

func TestDrainQueueReportsBatchCounts(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	resp, err := f.flow.DrainQueue(ctx, &dto.DrainQueueRequest{BatchSize: 25})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Claimed)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []int{25}, f.drainer.batchSizes)
}

func TestQueueStatsIncludeSuppressionSize(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	msg := memtest.NewTestQueuedMessage(1, 1, "a@example.com", utils.UTCNow())
	require.NoError(t, f.queue.Save(ctx, msg))
	failedMsg := memtest.NewTestQueuedMessage(1, 1, "b@example.com", utils.UTCNow())
	failedMsg.Status = models.QueueStatusFailed
	require.NoError(t, f.queue.Save(ctx, failedMsg))

	_, err := f.suppressions.AddIfAbsent(ctx, &models.SuppressionEntry{
		Email: "blocked@example.com", Source: models.SuppressionSourceManual,
	})
	require.NoError(t, err)

	stats, err := f.flow.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Zero(t, stats.Processing)
	assert.Equal(t, int64(1), stats.SuppressionSize)
}
