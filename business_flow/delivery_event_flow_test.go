package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
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

const testSigningSecret = "webhook-test-secret"

type healthStub struct {
	calls []uint
}

func (h *healthStub) Evaluate(_ context.Context, campaignID uint) (*HealthEvaluation, error) {
	h.calls = append(h.calls, campaignID)
	return &HealthEvaluation{}, nil
}

type eventFixture struct {
	flow         *DeliveryEventFlowImpl
	deliveries   *memtest.MemoryDeliveryLogRepo
	queue        *memtest.MemoryQueuedMessageRepo
	suppressions *memtest.MemorySuppressionRepo
	campaigns    *memtest.MemoryCampaignRepo
	audits       *memtest.MemoryAuditLogRepo
	health       *healthStub
	campaign     *models.Campaign
	log          *models.DeliveryLog
}

func newEventFixture(t *testing.T) *eventFixture {
	t.Helper()
	ctx := context.Background()

	f := &eventFixture{
		deliveries:   memtest.NewMemoryDeliveryLogRepo(),
		queue:        memtest.NewMemoryQueuedMessageRepo(),
		suppressions: memtest.NewMemorySuppressionRepo(),
		campaigns:    memtest.NewMemoryCampaignRepo(),
		audits:       memtest.NewMemoryAuditLogRepo(),
		health:       &healthStub{},
	}

	f.campaign = memtest.NewTestCampaign(1)
	f.campaign.ReplyBody = utils.ToPtr("<p>Thanks for getting back to me.</p>")
	require.NoError(t, f.campaigns.Save(ctx, f.campaign))

	// The original send the delivery log points back to
	original := memtest.NewTestQueuedMessage(f.campaign.ID, 1, "prospect@example.com", utils.UTCNow())
	original.Status = models.QueueStatusSent
	require.NoError(t, f.queue.Save(ctx, original))

	var err error
	f.log, err = memtest.SeedDeliveryLog(ctx, f.deliveries, f.campaign.ID, 1, "pm-100", models.DeliveryStatusSent, utils.UTCNow())
	require.NoError(t, err)

	flow := NewDeliveryEventFlow(
		f.deliveries, f.queue, f.suppressions, f.campaigns, f.audits, f.health,
		config.WebhookConfig{
			SigningSecret:    testSigningSecret,
			RequireSignature: true,
		},
		nil,
	)
	f.flow = flow.(*DeliveryEventFlowImpl)
	return f
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func eventPayload(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(fields)
	require.NoError(t, err)
	return payload
}

func (f *eventFixture) handle(t *testing.T, fields map[string]any) (*models.DeliveryLog, bool) {
	t.Helper()
	ctx := context.Background()
	payload := eventPayload(t, fields)

	resp, err := f.flow.HandleDeliveryEvent(ctx, payload, sign(payload))
	require.NoError(t, err)

	updated, err := f.deliveries.ByProviderMessageID(ctx, "pm-100")
	require.NoError(t, err)
	return updated, resp.Applied
}

func TestHandleDeliveryEventRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)
	payload := eventPayload(t, map[string]any{"event_type": "delivered", "provider_message_id": "pm-100"})

	_, err := f.flow.HandleDeliveryEvent(ctx, payload, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureRequired)

	_, err = f.flow.HandleDeliveryEvent(ctx, payload, hex.EncodeToString([]byte("not the right mac")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Tampering after signing must fail
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'
	_, err = f.flow.HandleDeliveryEvent(ctx, tampered, sign(payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleDeliveryEventAcceptsPrefixedSignature(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)
	payload := eventPayload(t, map[string]any{"event_type": "delivered", "provider_message_id": "pm-100"})

	resp, err := f.flow.HandleDeliveryEvent(ctx, payload, "sha256="+sign(payload))
	require.NoError(t, err)
	assert.True(t, resp.Applied)
}

func TestHandleDeliveryEventDropsUnknownMessage(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)
	payload := eventPayload(t, map[string]any{"event_type": "delivered", "provider_message_id": "pm-missing"})

	resp, err := f.flow.HandleDeliveryEvent(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.False(t, resp.Applied)
}

func TestHandleDeliveryEventOpenedCountsMonotonically(t *testing.T) {
	f := newEventFixture(t)

	first, applied := f.handle(t, map[string]any{"event_type": "opened", "provider_message_id": "pm-100"})
	require.True(t, applied)
	assert.Equal(t, 1, first.OpenCount)
	require.NotNil(t, first.FirstOpenedAt)
	firstOpenedAt := *first.FirstOpenedAt

	second, _ := f.handle(t, map[string]any{"event_type": "opened", "provider_message_id": "pm-100"})
	assert.Equal(t, 2, second.OpenCount)
	assert.Equal(t, firstOpenedAt, *second.FirstOpenedAt)
	assert.Equal(t, models.DeliveryStatusOpened, second.Status)
}

func TestHandleDeliveryEventNeverDowngradesStatus(t *testing.T) {
	f := newEventFixture(t)

	bounced, _ := f.handle(t, map[string]any{"event_type": "bounced", "provider_message_id": "pm-100"})
	assert.Equal(t, models.DeliveryStatusBounced, bounced.Status)
	require.NotNil(t, bounced.BouncedAt)

	// A late delivered event must not un-bounce the row
	late, _ := f.handle(t, map[string]any{"event_type": "delivered", "provider_message_id": "pm-100"})
	assert.Equal(t, models.DeliveryStatusBounced, late.Status)
	require.NotNil(t, late.DeliveredAt)
}

func TestHandleDeliveryEventSpamSuppressesOnce(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)

	updated, _ := f.handle(t, map[string]any{"event_type": "spam_complaint", "provider_message_id": "pm-100"})
	assert.Equal(t, models.DeliveryStatusSpam, updated.Status)

	suppressed, err := f.suppressions.Exists(ctx, "prospect@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)

	// A duplicate complaint is a no-op for the suppression list
	f.handle(t, map[string]any{"event_type": "spam_complaint", "provider_message_id": "pm-100"})
	size, err := f.suppressions.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	action := models.AuditActionSuppressionAdded
	audits, err := f.audits.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestHandleDeliveryEventBounceSuppressesOnlyPermanent(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)

	f.handle(t, map[string]any{"event_type": "bounced", "provider_message_id": "pm-100", "bounce_type": "transient"})
	suppressed, err := f.suppressions.Exists(ctx, "prospect@example.com")
	require.NoError(t, err)
	assert.False(t, suppressed)

	f.handle(t, map[string]any{"event_type": "bounced", "provider_message_id": "pm-100", "bounce_type": "permanent"})
	suppressed, err = f.suppressions.Exists(ctx, "prospect@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestHandleDeliveryEventBounceTriggersHealthCheck(t *testing.T) {
	f := newEventFixture(t)

	f.handle(t, map[string]any{"event_type": "bounced", "provider_message_id": "pm-100"})
	require.Len(t, f.health.calls, 1)
	assert.Equal(t, f.campaign.ID, f.health.calls[0])

	f.handle(t, map[string]any{"event_type": "opened", "provider_message_id": "pm-100"})
	assert.Len(t, f.health.calls, 1)
}

func TestHandleDeliveryEventReplyEnqueuesContinuation(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)

	updated, _ := f.handle(t, map[string]any{
		"event_type":          "replied",
		"provider_message_id": "pm-100",
		"thread_id":           "thread-9",
	})
	assert.Equal(t, models.DeliveryStatusReplied, updated.Status)
	assert.Equal(t, 1, updated.ReplyCount)

	status := models.QueueStatusPending
	pending, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{Status: &status}, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	reply := pending[0]
	assert.Equal(t, "prospect@example.com", reply.Recipient)
	assert.Equal(t, "Re: Test subject", reply.Subject)
	assert.Equal(t, *f.campaign.ReplyBody, reply.Body)
	assert.Equal(t, ReplyContinuationPriority, reply.Priority)
	require.NotNil(t, reply.ThreadID)
	assert.Equal(t, "thread-9", *reply.ThreadID)
}

func TestHandleDeliveryEventDuplicateReplyEnqueuesOneContinuation(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)

	event := map[string]any{
		"event_type":          "replied",
		"provider_message_id": "pm-100",
		"thread_id":           "thread-9",
	}
	f.handle(t, event)
	updated, applied := f.handle(t, event)
	assert.True(t, applied)
	assert.Equal(t, 2, updated.ReplyCount)

	status := models.QueueStatusPending
	pending, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{Status: &status}, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestHandleDeliveryEventReplyWithoutContinuationIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)
	f.campaign.ReplyBody = nil
	require.NoError(t, f.campaigns.Update(ctx, f.campaign))

	_, applied := f.handle(t, map[string]any{"event_type": "replied", "provider_message_id": "pm-100"})
	assert.True(t, applied)

	status := models.QueueStatusPending
	pending, err := f.queue.ByFilter(ctx, models.QueuedMessageFilter{Status: &status}, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleDeliveryEventClickLogIsBounded(t *testing.T) {
	f := newEventFixture(t)

	var updated *models.DeliveryLog
	for i := 0; i < utils.MaxClickRecords+5; i++ {
		updated, _ = f.handle(t, map[string]any{
			"event_type":          "clicked",
			"provider_message_id": "pm-100",
			"url":                 fmt.Sprintf("https://example.com/p/%d", i),
		})
	}
	assert.Equal(t, utils.MaxClickRecords+5, updated.ClickCount)
	assert.Len(t, updated.Clicks, utils.MaxClickRecords)
	assert.Equal(t, "https://example.com/p/0", updated.Clicks[0].URL)
}

func TestHandleDeliveryEventUsesProvidedTimestamp(t *testing.T) {
	f := newEventFixture(t)
	occurredAt := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)

	updated, _ := f.handle(t, map[string]any{
		"event_type":          "delivered",
		"provider_message_id": "pm-100",
		"occurred_at":         occurredAt.Format(time.RFC3339),
	})
	require.NotNil(t, updated.DeliveredAt)
	assert.Equal(t, occurredAt, *updated.DeliveredAt)
}

// lockedLookupRepo counts lookups that take the row lock
type lockedLookupRepo struct {
	*memtest.MemoryDeliveryLogRepo
	lockedLookups int
}

func (r *lockedLookupRepo) ByProviderMessageIDForUpdate(ctx context.Context, providerMessageID string) (*models.DeliveryLog, error) {
	r.lockedLookups++
	return r.MemoryDeliveryLogRepo.ByProviderMessageIDForUpdate(ctx, providerMessageID)
}

func TestHandleDeliveryEventLooksUpUnderRowLock(t *testing.T) {
	ctx := context.Background()
	f := newEventFixture(t)
	deliveries := &lockedLookupRepo{MemoryDeliveryLogRepo: f.deliveries}

	flow := NewDeliveryEventFlow(
		deliveries, f.queue, f.suppressions, f.campaigns, f.audits, f.health,
		config.WebhookConfig{SigningSecret: testSigningSecret, RequireSignature: true},
		nil,
	)

	payload := eventPayload(t, map[string]any{"event_type": "opened", "provider_message_id": "pm-100"})
	resp, err := flow.HandleDeliveryEvent(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	// Concurrent webhook deliveries for one message serialize on this
	// lookup; the counter update must never go through the plain read.
	assert.Equal(t, 1, deliveries.lockedLookups)

	updated, err := f.deliveries.ByProviderMessageID(ctx, "pm-100")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.OpenCount)
}
