package businessflow

import (
	"context"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/app/scheduler"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
)

// CampaignEnqueuer produces pending queue rows for one campaign on demand
type CampaignEnqueuer interface {
	ScheduleCampaign(ctx context.Context, campaign *models.Campaign) (int, error)
}

// QueueDrainer dispatches one batch of due queue rows on demand
type QueueDrainer interface {
	DrainBatch(ctx context.Context, batchSize int) (scheduler.DrainStats, error)
}

// PipelineFlow exposes manual pipeline triggers and operational visibility
type PipelineFlow interface {
	Enqueue(ctx context.Context, req *dto.EnqueueRequest) (*dto.EnqueueResponse, error)
	DrainQueue(ctx context.Context, req *dto.DrainQueueRequest) (*dto.DrainQueueResponse, error)
	QueueStats(ctx context.Context) (*dto.QueueStatsResponse, error)
}

// PipelineFlowImpl implements the pipeline business flow
type PipelineFlowImpl struct {
	campaignRepo    repository.CampaignRepository
	queueRepo       repository.QueuedMessageRepository
	suppressionRepo repository.SuppressionRepository
	enqueuer        CampaignEnqueuer
	drainer         QueueDrainer
}

// NewPipelineFlow creates a new pipeline flow instance
func NewPipelineFlow(
	campaignRepo repository.CampaignRepository,
	queueRepo repository.QueuedMessageRepository,
	suppressionRepo repository.SuppressionRepository,
	enqueuer CampaignEnqueuer,
	drainer QueueDrainer,
) PipelineFlow {
	return &PipelineFlowImpl{
		campaignRepo:    campaignRepo,
		queueRepo:       queueRepo,
		suppressionRepo: suppressionRepo,
		enqueuer:        enqueuer,
		drainer:         drainer,
	}
}

// Enqueue runs one scheduling cycle for a single campaign, mirroring what
// the periodic scheduler would do for it
func (s *PipelineFlowImpl) Enqueue(ctx context.Context, req *dto.EnqueueRequest) (*dto.EnqueueResponse, error) {
	campaign, err := getOwnedCampaignByUUID(ctx, s.campaignRepo, req.UUID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, NewBusinessError("CAMPAIGN_NOT_ACTIVE", "Only active campaigns can be enqueued", ErrCampaignNotActive)
	}

	scheduled, err := s.enqueuer.ScheduleCampaign(ctx, campaign)
	if err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Campaign scheduling failed", err)
	}

	return &dto.EnqueueResponse{
		Message:   "Campaign scheduled successfully",
		Scheduled: scheduled,
	}, nil
}

// DrainQueue runs one dispatch cycle, mirroring the periodic drain loop
func (s *PipelineFlowImpl) DrainQueue(ctx context.Context, req *dto.DrainQueueRequest) (*dto.DrainQueueResponse, error) {
	stats, err := s.drainer.DrainBatch(ctx, req.BatchSize)
	if err != nil {
		return nil, NewBusinessError("DRAIN_FAILED", "Queue drain failed", err)
	}

	return &dto.DrainQueueResponse{
		Message:   "Queue drained successfully",
		Claimed:   stats.Claimed,
		Sent:      stats.Sent,
		Failed:    stats.Failed,
		Requeued:  stats.Requeued,
		Reclaimed: stats.Reclaimed,
	}, nil
}

// QueueStats reports queue depth per status plus the suppression list size
func (s *PipelineFlowImpl) QueueStats(ctx context.Context) (*dto.QueueStatsResponse, error) {
	counts, err := s.queueRepo.CountByStatus(ctx)
	if err != nil {
		return nil, NewBusinessError("QUEUE_STATS_FAILED", "Failed to count queued messages", err)
	}
	size, err := s.suppressionRepo.Size(ctx)
	if err != nil {
		return nil, NewBusinessError("QUEUE_STATS_FAILED", "Failed to measure suppression list", err)
	}

	return &dto.QueueStatsResponse{
		Pending:         counts[models.QueueStatusPending],
		Processing:      counts[models.QueueStatusProcessing],
		Sent:            counts[models.QueueStatusSent],
		Failed:          counts[models.QueueStatusFailed],
		SuppressionSize: size,
	}, nil
}
