package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/Susanoo/app/services"
	"github.com/amirphl/Susanoo/config"
	"github.com/amirphl/Susanoo/models"
	memtest "github.com/amirphl/Susanoo/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	dispatcher   *Dispatcher
	queue        *memtest.MemoryQueuedMessageRepo
	accounts     *memtest.MemoryEmailAccountRepo
	deliveries   *memtest.MemoryDeliveryLogRepo
	suppressions *memtest.MemorySuppressionRepo
	provider     *services.MockProvider
	account      *models.EmailAccount
}

func newDispatcherFixture(t *testing.T, limit int) *dispatcherFixture {
	t.Helper()
	ctx := context.Background()

	f := &dispatcherFixture{
		queue:        memtest.NewMemoryQueuedMessageRepo(),
		accounts:     memtest.NewMemoryEmailAccountRepo(),
		deliveries:   memtest.NewMemoryDeliveryLogRepo(),
		suppressions: memtest.NewMemorySuppressionRepo(),
		provider:     services.NewMockProvider(),
	}

	cipher := memtest.NewTestCipher()
	f.account = memtest.NewTestAccount(cipher, "sender@example.com", time.Now().UTC().Add(time.Hour))
	require.NoError(t, f.accounts.Save(ctx, f.account))

	vault, err := services.NewCredentialVault(&config.VaultConfig{
		EncryptionKey: memtest.TestEncryptionKey,
		RefreshMargin: 5 * time.Minute,
	}, f.accounts, &services.MockTokenRefresher{})
	require.NoError(t, err)

	limiter, err := services.NewSlidingWindowLimiter(&config.RateLimiterConfig{
		Store:  "memory",
		Limit:  limit,
		Window: 24 * time.Hour,
	}, nil, "")
	require.NoError(t, err)

	f.dispatcher = NewDispatcher(
		f.queue, f.accounts, f.deliveries, f.suppressions,
		vault,
		map[string]services.Provider{"mock": f.provider},
		limiter,
		config.DispatcherConfig{
			BatchSize:        50,
			RetryBackoffBase: 5 * time.Minute,
			RequeueDelay:     2 * time.Minute,
			PerAccountRate:   1000,
			PerAccountBurst:  100,
		},
		config.ProviderConfig{},
		nil,
	)
	return f
}

func (f *dispatcherFixture) seedMessage(t *testing.T) *models.QueuedMessage {
	t.Helper()
	msg := memtest.NewTestQueuedMessage(1, f.account.ID, "prospect@example.com", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, f.queue.Save(context.Background(), msg))
	return msg
}

func TestDrainDueSendsAndLogsDelivery(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Sent)

	stored, err := f.queue.ByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSent, stored.Status)

	logs, err := f.deliveries.ByFilter(ctx, models.DeliveryLogFilter{}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, msg.ID, logs[0].MessageID)
	assert.Equal(t, models.DeliveryStatusSent, logs[0].Status)
	assert.NotEmpty(t, logs[0].ProviderMessageID)

	sent := f.provider.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "prospect@example.com", sent[0].To)
	assert.Equal(t, "sender@example.com", sent[0].From)
}

func TestDrainDueSkipsSuppressedRecipient(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)

	_, err := f.suppressions.AddIfAbsent(ctx, &models.SuppressionEntry{
		Email:  "prospect@example.com",
		Source: models.SuppressionSourceUnsubscribe,
	})
	require.NoError(t, err)

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Sent)

	stored, err := f.queue.ByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "recipient suppressed", *stored.ErrorMessage)
	assert.Empty(t, f.provider.GetSentMessages())
}

func TestDrainDueRetriesTransientFailureWithBackoff(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)
	f.provider.FailWith = services.ErrProviderUnavailable

	before := time.Now().UTC()
	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Requeued)

	stored, err := f.queue.ByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	// First retry waits one base backoff
	assert.True(t, stored.ScheduledFor.After(before.Add(4*time.Minute)))
	assert.True(t, stored.ScheduledFor.Before(before.Add(6*time.Minute)))
}

func TestDrainDueFailsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)
	msg.Attempts = msg.MaxAttempts - 1
	require.NoError(t, f.queue.Save(ctx, msg))
	f.provider.FailWith = services.ErrProviderUnavailable

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	stored, err := f.queue.ByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	assert.Equal(t, msg.MaxAttempts, stored.Attempts)
}

func TestDrainDueFailsImmediatelyOnPermanentRejection(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)
	f.provider.FailWith = services.ErrProviderRejected

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	stored, err := f.queue.ByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	// No retry attempt consumed reporting, it was rejected outright
	assert.Equal(t, 0, stored.Attempts)
}

func TestDrainDueAuthFailureFlagsAccountWithoutConsumingAttempts(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)
	f.provider.FailWith = services.ErrProviderAuth

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Requeued)

	stored, err := f.queue.ByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	account, err := f.accounts.ByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusError, account.Status)
}

func TestDrainDueHoldsBatchWhenReauthorizationRequired(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	first := f.seedMessage(t)
	second := f.seedMessage(t)
	require.NoError(t, f.accounts.SetStatus(ctx, f.account.ID, models.AccountStatusError))

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Requeued)
	assert.Equal(t, 0, stats.Sent)

	for _, id := range []uint{first.ID, second.ID} {
		stored, err := f.queue.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusPending, stored.Status)
		assert.Equal(t, 0, stored.Attempts)
	}
	assert.Empty(t, f.provider.GetSentMessages())
}

func TestDrainDueRateLimitRequeuesOverflow(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 1)
	f.seedMessage(t)
	f.seedMessage(t)

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Requeued)

	counts, err := f.queue.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.QueueStatusSent])
	assert.Equal(t, int64(1), counts[models.QueueStatusPending])
}

func TestDrainDueReclaimsStaleClaims(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 100)
	msg := f.seedMessage(t)

	// Simulate a crashed cycle that claimed the row long ago
	claimed, err := f.queue.ClaimDue(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	setStaleClaim(t, f.queue, msg.ID, time.Now().UTC().Add(-time.Hour))

	stats, err := f.dispatcher.DrainDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Reclaimed)
	assert.Equal(t, 1, stats.Sent)
}

// setStaleClaim backdates a processing row's claim timestamp
func setStaleClaim(t *testing.T, queue *memtest.MemoryQueuedMessageRepo, id uint, at time.Time) {
	t.Helper()
	ctx := context.Background()
	row, err := queue.ByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusProcessing, row.Status)
	row.ClaimedAt = &at
	require.NoError(t, queue.Save(ctx, row))
}

func TestConcurrentDrainsSendEachMessageOnce(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, 1000)

	for i := 0; i < 20; i++ {
		msg := memtest.NewTestQueuedMessage(1, f.account.ID, fmt.Sprintf("prospect-%d@example.com", i), time.Now().UTC().Add(-time.Minute))
		require.NoError(t, f.queue.Save(ctx, msg))
	}

	// A manual drain overlapping the ticker cycle must not double-send
	var wg sync.WaitGroup
	stats := make([]DrainStats, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats[i], errs[i] = f.dispatcher.DrainDue(ctx)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 20, stats[0].Sent+stats[1].Sent)

	seen := make(map[string]int)
	for _, req := range f.provider.GetSentMessages() {
		seen[req.To]++
	}
	require.Len(t, seen, 20)
	for recipient, count := range seen {
		assert.Equal(t, 1, count, "recipient %s", recipient)
	}

	rows, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{}, "", 0, 0)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, models.QueueStatusSent, row.Status)
	}
}
