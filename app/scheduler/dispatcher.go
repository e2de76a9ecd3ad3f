package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/amirphl/Susanoo/app/services"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Dispatcher drains due queue rows and pushes them through the provider for
// their account. Messages of one account are processed serially; accounts
// run concurrently.
type Dispatcher struct {
	queueRepo       repository.QueuedMessageRepository
	accountRepo     repository.EmailAccountRepository
	deliveryRepo    repository.DeliveryLogRepository
	suppressionRepo repository.SuppressionRepository

	vault     services.CredentialVault
	providers map[string]services.Provider
	limiter   services.RateLimiter

	cfg         config.DispatcherConfig
	providerCfg config.ProviderConfig
	logger      *log.Logger

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	pacerMu sync.Mutex
	pacers  map[uint]*rate.Limiter

	sendMu    sync.Mutex
	sendLocks map[uint]*sync.Mutex

	now func() time.Time
}

// DrainStats summarizes one drain cycle
type DrainStats struct {
	Reclaimed int64
	Claimed   int
	Sent      int
	Failed    int
	Requeued  int
}

func NewDispatcher(
	queueRepo repository.QueuedMessageRepository,
	accountRepo repository.EmailAccountRepository,
	deliveryRepo repository.DeliveryLogRepository,
	suppressionRepo repository.SuppressionRepository,
	vault services.CredentialVault,
	providers map[string]services.Provider,
	limiter services.RateLimiter,
	cfg config.DispatcherConfig,
	providerCfg config.ProviderConfig,
	logCfg *config.LoggingConfig,
) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StaleClaimThreshold <= 0 {
		cfg.StaleClaimThreshold = utils.StaleClaimThreshold
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = utils.RequeueDelay
	}
	return &Dispatcher{
		queueRepo:       queueRepo,
		accountRepo:     accountRepo,
		deliveryRepo:    deliveryRepo,
		suppressionRepo: suppressionRepo,
		vault:           vault,
		providers:       providers,
		limiter:         limiter,
		cfg:             cfg,
		providerCfg:     providerCfg,
		logger:          newPipelineLogger("dispatcher", logCfg),
		breakers:        make(map[string]*gobreaker.CircuitBreaker),
		pacers:          make(map[uint]*rate.Limiter),
		sendLocks:       make(map[uint]*sync.Mutex),
		now:             utils.UTCNow,
	}
}

// Start launches the drain loop in a background goroutine and returns a stop function
func (d *Dispatcher) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := d.DrainDue(ctx)
				if err != nil {
					d.logger.Printf("dispatcher: drain cycle failed: %v", err)
					continue
				}
				if stats.Claimed > 0 || stats.Reclaimed > 0 {
					d.logger.Printf("dispatcher: drained claimed=%d sent=%d failed=%d requeued=%d reclaimed=%d",
						stats.Claimed, stats.Sent, stats.Failed, stats.Requeued, stats.Reclaimed)
				}
			}
		}
	}()

	return cancel
}

// DrainDue claims one batch of due messages and dispatches them. Safe to call
// from multiple instances, the claim update never hands a row to two callers.
func (d *Dispatcher) DrainDue(ctx context.Context) (DrainStats, error) {
	return d.DrainBatch(ctx, d.cfg.BatchSize)
}

// DrainBatch is DrainDue with an explicit batch size, for manual triggers.
func (d *Dispatcher) DrainBatch(ctx context.Context, batchSize int) (DrainStats, error) {
	if batchSize <= 0 {
		batchSize = d.cfg.BatchSize
	}
	var stats DrainStats
	now := d.now()

	reclaimed, err := d.queueRepo.ReclaimStale(ctx, now.Add(-d.cfg.StaleClaimThreshold))
	if err != nil {
		return stats, fmt.Errorf("failed to reclaim stale claims: %w", err)
	}
	stats.Reclaimed = reclaimed
	if reclaimed > 0 {
		d.logger.Printf("dispatcher: reclaimed %d stale claims", reclaimed)
	}

	claimed, err := d.queueRepo.ClaimDue(ctx, now, batchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to claim due messages: %w", err)
	}
	stats.Claimed = len(claimed)
	if len(claimed) == 0 {
		return stats, nil
	}

	byAccount := make(map[uint][]*models.QueuedMessage)
	for _, msg := range claimed {
		byAccount[msg.AccountID] = append(byAccount[msg.AccountID], msg)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for accountID, batch := range byAccount {
		wg.Add(1)
		go func(accountID uint, batch []*models.QueuedMessage) {
			defer wg.Done()
			sent, failed, requeued := d.dispatchAccountBatch(ctx, accountID, batch)
			mu.Lock()
			stats.Sent += sent
			stats.Failed += failed
			stats.Requeued += requeued
			mu.Unlock()
		}(accountID, batch)
	}
	wg.Wait()

	return stats, nil
}

// accountSendLock returns the mutex serializing sends for one account
// across overlapping drain calls.
func (d *Dispatcher) accountSendLock(accountID uint) *sync.Mutex {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	lock, ok := d.sendLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		d.sendLocks[accountID] = lock
	}
	return lock
}

// dispatchAccountBatch processes one account's claimed messages in order.
// A manual drain can overlap the ticker cycle, so the account lock keeps a
// single sender active per account regardless of how many drains run.
func (d *Dispatcher) dispatchAccountBatch(ctx context.Context, accountID uint, batch []*models.QueuedMessage) (sent, failed, requeued int) {
	lock := d.accountSendLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := d.accountRepo.ByID(ctx, accountID)
	if err != nil || account == nil {
		d.logger.Printf("dispatcher: account id=%d unavailable: %v", accountID, err)
		requeued += d.requeueAll(ctx, batch, "account unavailable")
		return
	}

	for _, msg := range batch {
		switch outcome := d.dispatchOne(ctx, account, msg); outcome {
		case outcomeSent:
			sent++
		case outcomeFailed:
			failed++
		case outcomeRequeued:
			requeued++
		case outcomeAccountStop:
			requeued++
			// The rest of the batch cannot do better this cycle.
			requeued += d.requeueAll(ctx, remaining(batch, msg), "account credential unavailable")
			return
		}
	}
	return
}

type dispatchOutcome int

const (
	outcomeSent dispatchOutcome = iota
	outcomeFailed
	outcomeRequeued
	outcomeAccountStop
)

func (d *Dispatcher) dispatchOne(ctx context.Context, account *models.EmailAccount, msg *models.QueuedMessage) dispatchOutcome {
	now := d.now()

	// Suppression wins over everything already queued.
	suppressed, err := d.suppressionRepo.Exists(ctx, msg.Recipient)
	if err != nil {
		d.logger.Printf("dispatcher: message id=%d suppression check failed: %v", msg.ID, err)
		d.requeue(ctx, msg, "suppression check failed")
		return outcomeRequeued
	}
	if suppressed {
		if err := d.queueRepo.MarkFailed(ctx, msg.ID, msg.Attempts, "recipient suppressed"); err != nil {
			d.logger.Printf("dispatcher: message id=%d mark failed: %v", msg.ID, err)
		}
		messagesFailedTotal.WithLabelValues("suppressed").Inc()
		return outcomeFailed
	}

	token, err := d.vault.GetValidCredential(ctx, account)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReauthorizationRequired):
			// No attempt is consumed, the message waits for the operator.
			d.requeue(ctx, msg, "re-authorization required")
			return outcomeAccountStop
		case errors.Is(err, services.ErrCredentialCorrupt):
			d.logger.Printf("dispatcher: account id=%d credential corrupt: %v", account.ID, err)
			d.requeue(ctx, msg, "credential corrupt")
			return outcomeAccountStop
		default:
			d.requeue(ctx, msg, "credential fetch failed")
			return outcomeRequeued
		}
	}

	allowed, _, err := d.limiter.Take(ctx, strconv.FormatUint(uint64(account.ID), 10), now)
	if err != nil {
		d.logger.Printf("dispatcher: message id=%d rate limit check failed: %v", msg.ID, err)
		d.requeue(ctx, msg, "rate limit check failed")
		return outcomeRequeued
	}
	if !allowed {
		d.requeue(ctx, msg, "rate limited")
		return outcomeRequeued
	}

	if err := d.pacer(account.ID).Wait(ctx); err != nil {
		d.requeue(ctx, msg, "pacing interrupted")
		return outcomeRequeued
	}

	result, err := d.send(ctx, account, token, msg)
	if err != nil {
		return d.handleSendFailure(ctx, account, msg, err)
	}

	if err := d.queueRepo.MarkSent(ctx, msg.ID); err != nil {
		d.logger.Printf("dispatcher: message id=%d mark sent: %v", msg.ID, err)
	}
	threadID := result.ThreadID
	if err := d.deliveryRepo.Save(ctx, &models.DeliveryLog{
		MessageID:         msg.ID,
		CampaignID:        msg.CampaignID,
		AccountID:         msg.AccountID,
		Recipient:         msg.Recipient,
		ProviderMessageID: result.ProviderMessageID,
		ThreadID:          nonEmptyPtr(threadID),
		Status:            models.DeliveryStatusSent,
		SentAt:            now,
	}); err != nil {
		d.logger.Printf("dispatcher: message id=%d delivery log save: %v", msg.ID, err)
	}
	messagesSentTotal.Inc()
	return outcomeSent
}

func (d *Dispatcher) send(ctx context.Context, account *models.EmailAccount, token string, msg *models.QueuedMessage) (*services.SendResult, error) {
	provider, ok := d.providers[account.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: no backend registered for provider %q", services.ErrProviderRejected, account.Provider)
	}

	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	started := d.now()
	out, err := d.breaker(account.Provider).Execute(func() (interface{}, error) {
		return provider.Send(sendCtx, token, &services.SendRequest{
			From:       account.Email,
			To:         msg.Recipient,
			Subject:    msg.Subject,
			Body:       msg.Body,
			ThreadID:   msg.ThreadID,
			TrackingID: msg.TrackingID,
		})
	})
	dispatchDuration.Observe(d.now().Sub(started).Seconds())
	if err != nil {
		return nil, err
	}
	return out.(*services.SendResult), nil
}

func (d *Dispatcher) handleSendFailure(ctx context.Context, account *models.EmailAccount, msg *models.QueuedMessage, err error) dispatchOutcome {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		d.requeue(ctx, msg, "provider circuit open")
		return outcomeRequeued

	case services.IsAuthError(err):
		// The provider rejected a token the vault considered valid. Flag the
		// account and hold its messages without consuming attempts.
		if setErr := d.accountRepo.SetStatus(ctx, account.ID, models.AccountStatusError); setErr != nil {
			d.logger.Printf("dispatcher: account id=%d status update failed: %v", account.ID, setErr)
		}
		d.requeue(ctx, msg, "provider auth rejected")
		return outcomeAccountStop

	case services.IsPermanentError(err):
		if markErr := d.queueRepo.MarkFailed(ctx, msg.ID, msg.Attempts, err.Error()); markErr != nil {
			d.logger.Printf("dispatcher: message id=%d mark failed: %v", msg.ID, markErr)
		}
		messagesFailedTotal.WithLabelValues("rejected").Inc()
		return outcomeFailed
	}

	// Transient failure consumes an attempt.
	attempts := msg.Attempts + 1
	if attempts >= msg.MaxAttempts {
		if markErr := d.queueRepo.MarkFailed(ctx, msg.ID, attempts, err.Error()); markErr != nil {
			d.logger.Printf("dispatcher: message id=%d mark failed: %v", msg.ID, markErr)
		}
		messagesFailedTotal.WithLabelValues("attempts_exhausted").Inc()
		return outcomeFailed
	}

	backoff := d.cfg.RetryBackoffBase * (1 << (attempts - 1))
	if retryErr := d.queueRepo.RetryLater(ctx, msg.ID, attempts, d.now().Add(backoff)); retryErr != nil {
		d.logger.Printf("dispatcher: message id=%d retry later: %v", msg.ID, retryErr)
	}
	d.logger.Printf("dispatcher: message id=%d attempt %d/%d failed, retrying in %s: %v",
		msg.ID, attempts, msg.MaxAttempts, backoff, err)
	return outcomeRequeued
}

func (d *Dispatcher) requeue(ctx context.Context, msg *models.QueuedMessage, reason string) {
	if err := d.queueRepo.Requeue(ctx, msg.ID, d.now().Add(d.cfg.RequeueDelay)); err != nil {
		d.logger.Printf("dispatcher: message id=%d requeue: %v", msg.ID, err)
		return
	}
	messagesRequeuedTotal.WithLabelValues(reason).Inc()
}

func (d *Dispatcher) requeueAll(ctx context.Context, batch []*models.QueuedMessage, reason string) int {
	for _, msg := range batch {
		d.requeue(ctx, msg, reason)
	}
	return len(batch)
}

// remaining returns the messages after cur in the batch
func remaining(batch []*models.QueuedMessage, cur *models.QueuedMessage) []*models.QueuedMessage {
	for i, msg := range batch {
		if msg.ID == cur.ID {
			return batch[i+1:]
		}
	}
	return nil
}

func (d *Dispatcher) breaker(providerName string) *gobreaker.CircuitBreaker {
	d.breakerMu.Lock()
	defer d.breakerMu.Unlock()
	cb, ok := d.breakers[providerName]
	if !ok {
		maxFailures := d.providerCfg.BreakerMaxFailures
		if maxFailures == 0 {
			maxFailures = 5
		}
		openInterval := d.providerCfg.BreakerOpenInterval
		if openInterval <= 0 {
			openInterval = time.Minute
		}
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "provider-" + providerName,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     openInterval,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= maxFailures && failureRatio >= 0.5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				d.logger.Printf("dispatcher: circuit %s %s -> %s", name, from.String(), to.String())
			},
		})
		d.breakers[providerName] = cb
	}
	return cb
}

func (d *Dispatcher) pacer(accountID uint) *rate.Limiter {
	d.pacerMu.Lock()
	defer d.pacerMu.Unlock()
	p, ok := d.pacers[accountID]
	if !ok {
		r := d.cfg.PerAccountRate
		if r <= 0 {
			r = 1
		}
		burst := d.cfg.PerAccountBurst
		if burst <= 0 {
			burst = 1
		}
		p = rate.NewLimiter(rate.Limit(r), burst)
		d.pacers[accountID] = p
	}
	return p
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
