package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var deliveryEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "susanoo_delivery_events_total",
	Help: "Inbound provider delivery events by type and outcome.",
}, []string{"event_type", "outcome"})

// ReplyContinuationPriority puts reply sends ahead of scheduled campaign mail
const ReplyContinuationPriority = 10

// DeliveryEventFlow reconciles asynchronous provider callbacks into the
// delivery log. Events are idempotent; duplicates and out-of-order arrival
// never downgrade a row or double-count a side effect.
type DeliveryEventFlow interface {
	HandleDeliveryEvent(ctx context.Context, rawPayload []byte, signature string) (*dto.DeliveryEventResponse, error)
}

// DeliveryEventFlowImpl implements the delivery event business flow
type DeliveryEventFlowImpl struct {
	deliveryRepo    repository.DeliveryLogRepository
	queueRepo       repository.QueuedMessageRepository
	suppressionRepo repository.SuppressionRepository
	campaignRepo    repository.CampaignRepository
	auditRepo       repository.AuditLogRepository
	health          CampaignHealthFlow
	cfg             config.WebhookConfig
	db              *gorm.DB
	logger          *log.Logger
	now             func() time.Time
}

// NewDeliveryEventFlow creates a new delivery event flow instance
func NewDeliveryEventFlow(
	deliveryRepo repository.DeliveryLogRepository,
	queueRepo repository.QueuedMessageRepository,
	suppressionRepo repository.SuppressionRepository,
	campaignRepo repository.CampaignRepository,
	auditRepo repository.AuditLogRepository,
	health CampaignHealthFlow,
	cfg config.WebhookConfig,
	db *gorm.DB,
) DeliveryEventFlow {
	return &DeliveryEventFlowImpl{
		deliveryRepo:    deliveryRepo,
		queueRepo:       queueRepo,
		suppressionRepo: suppressionRepo,
		campaignRepo:    campaignRepo,
		auditRepo:       auditRepo,
		health:          health,
		cfg:             cfg,
		db:              db,
		logger:          log.Default(),
		now:             utils.UTCNow,
	}
}

// HandleDeliveryEvent verifies the webhook signature, decodes the event and
// applies it to the matching delivery log. Events without a matching row are
// dropped with a warning, not an error.
func (s *DeliveryEventFlowImpl) HandleDeliveryEvent(ctx context.Context, rawPayload []byte, signature string) (*dto.DeliveryEventResponse, error) {
	if err := s.verifySignature(rawPayload, signature); err != nil {
		deliveryEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, NewBusinessError("WEBHOOK_SIGNATURE_INVALID", "Webhook signature verification failed", err)
	}

	var event dto.DeliveryEventRequest
	if err := json.Unmarshal(rawPayload, &event); err != nil {
		deliveryEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, NewBusinessError("WEBHOOK_PAYLOAD_INVALID", "Webhook payload could not be decoded", err)
	}

	occurredAt := s.now()
	if event.OccurredAt != nil {
		occurredAt = event.OccurredAt.UTC()
	}

	// The lookup runs inside the transaction under a row lock so two
	// concurrent deliveries of events for the same message serialize
	// instead of overwriting each other's counters.
	var deliveryLog *models.DeliveryLog
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		deliveryLog, err = s.deliveryRepo.ByProviderMessageIDForUpdate(txCtx, event.ProviderMessageID)
		if err != nil {
			return fmt.Errorf("failed to lookup delivery log: %w", err)
		}
		if deliveryLog == nil {
			return nil
		}
		if err := s.applyEvent(deliveryLog, &event, occurredAt); err != nil {
			return err
		}
		if err := s.deliveryRepo.Update(txCtx, deliveryLog); err != nil {
			return fmt.Errorf("failed to persist delivery log: %w", err)
		}
		return s.applySideEffects(txCtx, deliveryLog, &event, occurredAt)
	})
	if err != nil {
		deliveryEventsTotal.WithLabelValues(event.EventType, "failed").Inc()
		return nil, NewBusinessError("EVENT_APPLY_FAILED", "Delivery event could not be applied", err)
	}
	if deliveryLog == nil {
		s.logger.Printf("webhook: dropping %s event for unknown provider message id %q",
			event.EventType, event.ProviderMessageID)
		deliveryEventsTotal.WithLabelValues(event.EventType, "dropped").Inc()
		return &dto.DeliveryEventResponse{Message: "Event dropped: unknown message", Applied: false}, nil
	}
	deliveryEventsTotal.WithLabelValues(event.EventType, "applied").Inc()

	// Bounce and spam events re-check campaign health immediately so an
	// unhealthy campaign stops close to the event that hurt it.
	if event.EventType == "bounced" || event.EventType == "spam_complaint" {
		if _, err := s.health.Evaluate(ctx, deliveryLog.CampaignID); err != nil {
			s.logger.Printf("webhook: health evaluation for campaign %d failed: %v", deliveryLog.CampaignID, err)
		}
	}

	return &dto.DeliveryEventResponse{Message: "Event applied", Applied: true}, nil
}

// verifySignature checks the hex HMAC-SHA256 of the raw payload in constant
// time. Verification is never relaxed when the config requires it.
func (s *DeliveryEventFlowImpl) verifySignature(rawPayload []byte, signature string) error {
	if !s.cfg.RequireSignature {
		return nil
	}
	if signature == "" {
		return ErrSignatureRequired
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.SigningSecret))
	mac.Write(rawPayload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// applyEvent mutates the delivery log in memory. Counters only grow, first
// seen timestamps are written once and the status never ranks downward.
func (s *DeliveryEventFlowImpl) applyEvent(deliveryLog *models.DeliveryLog, event *dto.DeliveryEventRequest, occurredAt time.Time) error {
	switch event.EventType {
	case "delivered":
		if deliveryLog.DeliveredAt == nil {
			deliveryLog.DeliveredAt = &occurredAt
		}
		upgradeStatus(deliveryLog, models.DeliveryStatusDelivered)

	case "opened":
		deliveryLog.OpenCount++
		if deliveryLog.FirstOpenedAt == nil {
			deliveryLog.FirstOpenedAt = &occurredAt
		}
		deliveryLog.LastOpenedAt = &occurredAt
		upgradeStatus(deliveryLog, models.DeliveryStatusOpened)

	case "replied":
		deliveryLog.ReplyCount++
		if deliveryLog.FirstRepliedAt == nil {
			deliveryLog.FirstRepliedAt = &occurredAt
		}
		deliveryLog.LastRepliedAt = &occurredAt
		if event.ThreadID != nil && deliveryLog.ThreadID == nil {
			deliveryLog.ThreadID = event.ThreadID
		}
		upgradeStatus(deliveryLog, models.DeliveryStatusReplied)

	case "clicked":
		deliveryLog.ClickCount++
		if len(deliveryLog.Clicks) < utils.MaxClickRecords {
			record := models.ClickRecord{ClickedAt: occurredAt}
			if event.URL != nil {
				record.URL = *event.URL
			}
			if event.IPAddress != nil {
				record.IPAddress = *event.IPAddress
			}
			if event.UserAgent != nil {
				record.UserAgent = *event.UserAgent
			}
			deliveryLog.Clicks = append(deliveryLog.Clicks, record)
		}

	case "bounced":
		if deliveryLog.BouncedAt == nil {
			deliveryLog.BouncedAt = &occurredAt
		}
		upgradeStatus(deliveryLog, models.DeliveryStatusBounced)

	case "spam_complaint":
		if deliveryLog.SpamFlaggedAt == nil {
			deliveryLog.SpamFlaggedAt = &occurredAt
		}
		upgradeStatus(deliveryLog, models.DeliveryStatusSpam)

	case "unsubscribed":
		if deliveryLog.UnsubscribedAt == nil {
			deliveryLog.UnsubscribedAt = &occurredAt
		}
		upgradeStatus(deliveryLog, models.DeliveryStatusUnsubscribed)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownDeliveryEvent, event.EventType)
	}
	return nil
}

// applySideEffects handles suppression inserts and reply continuations
func (s *DeliveryEventFlowImpl) applySideEffects(ctx context.Context, deliveryLog *models.DeliveryLog, event *dto.DeliveryEventRequest, occurredAt time.Time) error {
	switch event.EventType {
	case "spam_complaint":
		return s.suppress(ctx, deliveryLog, models.SuppressionSourceSpamComplaint, "spam complaint")

	case "unsubscribed":
		return s.suppress(ctx, deliveryLog, models.SuppressionSourceUnsubscribe, "unsubscribed")

	case "bounced":
		// Only permanent bounces take the address out of rotation for good
		if event.BounceType != nil && *event.BounceType == "permanent" {
			return s.suppress(ctx, deliveryLog, models.SuppressionSourceBounce, "permanent bounce")
		}
		return nil

	case "replied":
		// One continuation per delivery log. Redelivered or repeated
		// replied events only bump the counters above.
		if deliveryLog.ReplyCount != 1 {
			return nil
		}
		return s.enqueueReplyContinuation(ctx, deliveryLog, occurredAt)
	}
	return nil
}

func (s *DeliveryEventFlowImpl) suppress(ctx context.Context, deliveryLog *models.DeliveryLog, source models.SuppressionSource, reason string) error {
	added, err := s.suppressionRepo.AddIfAbsent(ctx, &models.SuppressionEntry{
		Email:  deliveryLog.Recipient,
		Reason: reason,
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("failed to suppress recipient: %w", err)
	}
	if added {
		msg := fmt.Sprintf("Recipient %s suppressed: %s", deliveryLog.Recipient, reason)
		_ = recordAudit(ctx, s.auditRepo, &deliveryLog.CampaignID, &deliveryLog.AccountID, models.AuditActionSuppressionAdded, msg, true, nil, nil)
	}
	return nil
}

// enqueueReplyContinuation schedules the configured follow-up through the
// normal dispatch path instead of sending inline, so rate limits and
// credential checks still apply.
func (s *DeliveryEventFlowImpl) enqueueReplyContinuation(ctx context.Context, deliveryLog *models.DeliveryLog, occurredAt time.Time) error {
	campaign, err := s.campaignRepo.ByID(ctx, deliveryLog.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to lookup campaign: %w", err)
	}
	if campaign == nil || campaign.ReplyBody == nil {
		s.logger.Printf("webhook: reply for message %d has no continuation configured, skipping", deliveryLog.MessageID)
		return nil
	}

	// Continue under the rendered subject of the original send
	subject := "Re:"
	original, err := s.queueRepo.ByID(ctx, deliveryLog.MessageID)
	if err != nil {
		return fmt.Errorf("failed to lookup original message: %w", err)
	}
	if original != nil {
		subject = "Re: " + original.Subject
	}

	return s.queueRepo.Save(ctx, &models.QueuedMessage{
		CampaignID:   campaign.ID,
		AccountID:    deliveryLog.AccountID,
		TrackingID:   uuid.NewString(),
		Recipient:    deliveryLog.Recipient,
		Subject:      subject,
		Body:         *campaign.ReplyBody,
		ThreadID:     deliveryLog.ThreadID,
		Priority:     ReplyContinuationPriority,
		MaxAttempts:  utils.DefaultMaxAttempts,
		ScheduledFor: occurredAt,
		Status:       models.QueueStatusPending,
	})
}

func upgradeStatus(deliveryLog *models.DeliveryLog, status models.DeliveryStatus) {
	if status.Rank() > deliveryLog.Status.Rank() {
		deliveryLog.Status = status
	}
}
