package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
)

// CampaignScheduler periodically computes how many messages each active
// campaign may enqueue and creates the pending queue rows.
type CampaignScheduler struct {
	campaignRepo    repository.CampaignRepository
	queueRepo       repository.QueuedMessageRepository
	prospectRepo    repository.ProspectRepository
	accountRepo     repository.EmailAccountRepository
	suppressionRepo repository.SuppressionRepository

	cfg    config.SchedulerConfig
	logger *log.Logger

	now   func() time.Time
	runTx func(context.Context, func(context.Context) error) error
}

func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	queueRepo repository.QueuedMessageRepository,
	prospectRepo repository.ProspectRepository,
	accountRepo repository.EmailAccountRepository,
	suppressionRepo repository.SuppressionRepository,
	db *gorm.DB,
	cfg config.SchedulerConfig,
	logCfg *config.LoggingConfig,
) *CampaignScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &CampaignScheduler{
		campaignRepo:    campaignRepo,
		queueRepo:       queueRepo,
		prospectRepo:    prospectRepo,
		accountRepo:     accountRepo,
		suppressionRepo: suppressionRepo,
		cfg:             cfg,
		logger:          newPipelineLogger("scheduler", logCfg),
		now:             utils.UTCNow,
		runTx: func(ctx context.Context, fn func(context.Context) error) error {
			return repository.WithTransaction(ctx, db, fn)
		},
	}
}

// Start launches the scheduling loop in a background goroutine and returns a stop function
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		if err := s.RunOnce(ctx); err != nil {
			s.logger.Printf("scheduler: cycle finished with errors: %v", err)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Printf("scheduler: cycle finished with errors: %v", err)
				}
			}
		}
	}()

	return cancel
}

// RunOnce schedules one cycle for every active campaign. A failure on one
// campaign never aborts the others; errors are collected and returned joined.
func (s *CampaignScheduler) RunOnce(ctx context.Context) error {
	active, err := s.campaignRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active campaigns: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	var errs []error
	for _, campaign := range active {
		scheduled, err := s.ScheduleCampaign(ctx, campaign)
		if err != nil {
			errs = append(errs, fmt.Errorf("campaign %d: %w", campaign.ID, err))
			continue
		}
		if scheduled > 0 {
			s.logger.Printf("scheduler: campaign id=%d scheduled %d messages", campaign.ID, scheduled)
		}
	}
	return errors.Join(errs...)
}

// ScheduleCampaign enqueues up to the campaign's remaining daily budget and
// returns how many messages were created.
func (s *CampaignScheduler) ScheduleCampaign(ctx context.Context, campaign *models.Campaign) (int, error) {
	account, err := s.accountRepo.ByID(ctx, campaign.AccountID)
	if err != nil {
		return 0, fmt.Errorf("failed to load account %d: %w", campaign.AccountID, err)
	}
	if account == nil {
		return 0, fmt.Errorf("account %d not found", campaign.AccountID)
	}
	if account.Status == models.AccountStatusError {
		// Nothing is queued until the operator reconnects the account.
		s.logger.Printf("scheduler: campaign id=%d skipped, account id=%d needs re-authorization", campaign.ID, account.ID)
		return 0, nil
	}

	hours, err := HoursForCampaign(campaign, &s.cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve send window: %w", err)
	}

	now := s.now()
	dayStart := utils.StartOfDay(now.In(hours.Location))
	sentToday, err := s.queueRepo.CountForCampaignSince(ctx, campaign.ID, dayStart)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's sends: %w", err)
	}

	budget := campaign.DailyVolume - int(sentToday)
	if budget <= 0 {
		return 0, nil
	}
	// First active cycle is capped to avoid an initial burst from a fresh
	// sender address.
	if campaign.LastScheduledAt == nil && budget > s.cfg.RampUpVolume {
		budget = s.cfg.RampUpVolume
	}

	// Warmup campaigns have no prospect list; they rotate through the
	// owner's other connected mailboxes instead.
	if campaign.Type == models.CampaignTypeWarmup {
		return s.scheduleWarmup(ctx, campaign, hours, now, budget)
	}

	if campaign.ProspectListID == nil {
		return 0, fmt.Errorf("campaign has no prospect source")
	}
	prospects, err := s.prospectRepo.ListEligible(ctx, *campaign.ProspectListID, budget)
	if err != nil {
		return 0, fmt.Errorf("failed to list eligible prospects: %w", err)
	}
	if len(prospects) == 0 {
		return 0, nil
	}

	messages := make([]*models.QueuedMessage, 0, len(prospects))
	handled := make([]uint, 0, len(prospects))
	for _, prospect := range prospects {
		suppressed, err := s.suppressionRepo.Exists(ctx, prospect.Email)
		if err != nil {
			return 0, fmt.Errorf("failed to check suppression for %s: %w", prospect.Email, err)
		}
		if suppressed {
			// Taken out of rotation so the slot is not wasted every cycle.
			handled = append(handled, prospect.ID)
			continue
		}
		if _, err := mail.ParseAddress(prospect.Email); err != nil {
			s.logger.Printf("scheduler: campaign id=%d dropping invalid address %q", campaign.ID, prospect.Email)
			handled = append(handled, prospect.ID)
			continue
		}

		subject, body := s.render(campaign, prospect)
		if len(body) > utils.MaxMessageBodyBytes {
			s.logger.Printf("scheduler: campaign id=%d rendered body for %s exceeds size cap", campaign.ID, prospect.Email)
			handled = append(handled, prospect.ID)
			continue
		}

		messages = append(messages, &models.QueuedMessage{
			CampaignID:   campaign.ID,
			AccountID:    campaign.AccountID,
			TrackingID:   uuid.New().String(),
			Recipient:    prospect.Email,
			Subject:      subject,
			Body:         body,
			MaxAttempts:  utils.DefaultMaxAttempts,
			ScheduledFor: hours.Next(now.Add(s.jitter())),
			Status:       models.QueueStatusPending,
		})
		handled = append(handled, prospect.ID)
	}

	if len(handled) == 0 {
		return 0, nil
	}

	if err := s.runTx(ctx, func(txCtx context.Context) error {
		if len(messages) > 0 {
			if err := s.queueRepo.SaveBatch(txCtx, messages); err != nil {
				return err
			}
		}
		if err := s.prospectRepo.MarkContacted(txCtx, handled, now); err != nil {
			return err
		}
		return s.campaignRepo.SetLastScheduledAt(txCtx, campaign.ID, now)
	}); err != nil {
		return 0, fmt.Errorf("failed to persist scheduled batch: %w", err)
	}

	messagesScheduledTotal.Add(float64(len(messages)))
	return len(messages), nil
}

// scheduleWarmup enqueues up to budget messages to the owner's other usable
// accounts, starting at a day-rotated offset so successive days reach
// different mailboxes first.
func (s *CampaignScheduler) scheduleWarmup(ctx context.Context, campaign *models.Campaign, hours *BusinessHours, now time.Time, budget int) (int, error) {
	peers, err := s.accountRepo.ByFilter(ctx, models.EmailAccountFilter{OwnerID: &campaign.OwnerID}, "id ASC", 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list warmup pool: %w", err)
	}

	pool := make([]*models.EmailAccount, 0, len(peers))
	for _, peer := range peers {
		if peer.ID == campaign.AccountID || peer.Status == models.AccountStatusError {
			continue
		}
		pool = append(pool, peer)
	}
	if len(pool) == 0 {
		s.logger.Printf("scheduler: campaign id=%d skipped, no other usable accounts to warm against", campaign.ID)
		return 0, nil
	}

	day := int(now.In(hours.Location).YearDay())
	messages := make([]*models.QueuedMessage, 0, budget)
	for i := 0; i < budget && i < len(pool); i++ {
		peer := pool[(day+int(campaign.ID)+i)%len(pool)]

		suppressed, err := s.suppressionRepo.Exists(ctx, peer.Email)
		if err != nil {
			return 0, fmt.Errorf("failed to check suppression for %s: %w", peer.Email, err)
		}
		if suppressed {
			continue
		}

		subject, body := s.render(campaign, &models.Prospect{Email: peer.Email})
		messages = append(messages, &models.QueuedMessage{
			CampaignID:   campaign.ID,
			AccountID:    campaign.AccountID,
			TrackingID:   uuid.New().String(),
			Recipient:    peer.Email,
			Subject:      subject,
			Body:         body,
			MaxAttempts:  utils.DefaultMaxAttempts,
			ScheduledFor: hours.Next(now.Add(s.jitter())),
			Status:       models.QueueStatusPending,
		})
	}

	if err := s.runTx(ctx, func(txCtx context.Context) error {
		if len(messages) > 0 {
			if err := s.queueRepo.SaveBatch(txCtx, messages); err != nil {
				return err
			}
		}
		return s.campaignRepo.SetLastScheduledAt(txCtx, campaign.ID, now)
	}); err != nil {
		return 0, fmt.Errorf("failed to persist warmup batch: %w", err)
	}

	messagesScheduledTotal.Add(float64(len(messages)))
	return len(messages), nil
}

func (s *CampaignScheduler) jitter() time.Duration {
	min, max := s.cfg.JitterMin, s.cfg.JitterMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// render substitutes prospect fields into the campaign template
func (s *CampaignScheduler) render(campaign *models.Campaign, prospect *models.Prospect) (string, string) {
	replacer := strings.NewReplacer(
		"{{first_name}}", prospect.FirstName,
		"{{last_name}}", prospect.LastName,
		"{{company}}", prospect.Company,
		"{{email}}", prospect.Email,
	)
	subject := campaign.Title
	if campaign.TemplateSubject != nil {
		subject = replacer.Replace(*campaign.TemplateSubject)
	}
	body := ""
	if campaign.TemplateBody != nil {
		body = replacer.Replace(*campaign.TemplateBody)
	}
	return subject, body
}
