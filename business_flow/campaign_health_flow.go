package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var campaignsAutoPausedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "susanoo_campaigns_auto_paused_total",
	Help: "Campaigns paused by the health monitor, by triggering metric.",
}, []string{"metric"})

// HealthEvaluation is the outcome of one rolling-window health check
type HealthEvaluation struct {
	TotalSent      int64
	Bounced        int64
	SpamComplaints int64
	BounceRate     float64
	SpamRate       float64
	Paused         bool
	Reason         string
}

// CampaignHealthFlow evaluates rolling bounce and spam rates per campaign
// and pauses campaigns that cross the configured thresholds
type CampaignHealthFlow interface {
	Evaluate(ctx context.Context, campaignID uint) (*HealthEvaluation, error)
}

// CampaignHealthFlowImpl implements the campaign health business flow
type CampaignHealthFlowImpl struct {
	campaignRepo repository.CampaignRepository
	deliveryRepo repository.DeliveryLogRepository
	auditRepo    repository.AuditLogRepository
	cfg          config.HealthConfig
	now          func() time.Time
}

// NewCampaignHealthFlow creates a new campaign health flow instance
func NewCampaignHealthFlow(
	campaignRepo repository.CampaignRepository,
	deliveryRepo repository.DeliveryLogRepository,
	auditRepo repository.AuditLogRepository,
	cfg config.HealthConfig,
) *CampaignHealthFlowImpl {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.BounceRateThreshold <= 0 {
		cfg.BounceRateThreshold = 0.05
	}
	if cfg.SpamRateThreshold <= 0 {
		cfg.SpamRateThreshold = 0.01
	}
	return &CampaignHealthFlowImpl{
		campaignRepo: campaignRepo,
		deliveryRepo: deliveryRepo,
		auditRepo:    auditRepo,
		cfg:          cfg,
		now:          utils.UTCNow,
	}
}

// Evaluate computes bounce and spam rates over the trailing window and
// pauses the campaign when either threshold is exceeded. Re-evaluating an
// already-paused campaign never produces a second transition.
func (s *CampaignHealthFlowImpl) Evaluate(ctx context.Context, campaignID uint) (*HealthEvaluation, error) {
	since := s.now().Add(-s.cfg.Window)

	agg, err := s.deliveryRepo.WindowAggregate(ctx, campaignID, since)
	if err != nil {
		return nil, NewBusinessError("HEALTH_EVALUATION_FAILED", "Failed to aggregate delivery outcomes", err)
	}

	eval := &HealthEvaluation{
		TotalSent:      agg.TotalSent,
		Bounced:        agg.Bounced,
		SpamComplaints: agg.SpamComplaints,
	}
	if agg.TotalSent == 0 {
		return eval, nil
	}

	eval.BounceRate = float64(agg.Bounced) / float64(agg.TotalSent)
	eval.SpamRate = float64(agg.SpamComplaints) / float64(agg.TotalSent)

	var reason, metric string
	switch {
	case eval.BounceRate > s.cfg.BounceRateThreshold:
		reason = fmt.Sprintf("bounce rate %.1f%% exceeds threshold %.1f%%",
			eval.BounceRate*100, s.cfg.BounceRateThreshold*100)
		metric = "bounce_rate"
	case eval.SpamRate > s.cfg.SpamRateThreshold:
		reason = fmt.Sprintf("spam rate %.1f%% exceeds threshold %.1f%%",
			eval.SpamRate*100, s.cfg.SpamRateThreshold*100)
		metric = "spam_rate"
	default:
		return eval, nil
	}

	paused, err := s.campaignRepo.PauseIfActive(ctx, campaignID, reason)
	if err != nil {
		return nil, NewBusinessError("HEALTH_PAUSE_FAILED", "Failed to pause unhealthy campaign", err)
	}
	eval.Reason = reason
	if !paused {
		return eval, nil
	}
	eval.Paused = true

	campaignsAutoPausedTotal.WithLabelValues(metric).Inc()
	msg := fmt.Sprintf("Campaign auto-paused: %s", reason)
	_ = recordAudit(ctx, s.auditRepo, &campaignID, nil, models.AuditActionCampaignAutoPaused, msg, true, nil, nil)

	return eval, nil
}
