// Package testing provides test utilities and in-memory repositories for testing the delivery pipeline
package testing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/google/uuid"
)

// MemoryCampaignRepo implements repository.CampaignRepository in memory
type MemoryCampaignRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Campaign
	nextID uint
}

func NewMemoryCampaignRepo() *MemoryCampaignRepo {
	return &MemoryCampaignRepo{rows: make(map[uint]*models.Campaign), nextID: 1}
}

func (r *MemoryCampaignRepo) ByID(_ context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryCampaignRepo) ByUUID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UUID == id {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryCampaignRepo) Save(_ context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if campaign.ID == 0 {
		campaign.ID = r.nextID
		r.nextID++
	}
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = utils.UTCNow()
	}
	clone := *campaign
	r.rows[campaign.ID] = &clone
	return nil
}

func (r *MemoryCampaignRepo) SaveBatch(ctx context.Context, campaigns []*models.Campaign) error {
	for _, c := range campaigns {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryCampaignRepo) Update(ctx context.Context, campaign *models.Campaign) error {
	return r.Save(ctx, campaign)
}

func (r *MemoryCampaignRepo) ListActive(_ context.Context) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, row := range r.rows {
		if row.Status == models.CampaignStatusActive {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryCampaignRepo) UpdateStatus(_ context.Context, campaignID uint, status models.CampaignStatus, pauseReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[campaignID]
	if !ok {
		return nil
	}
	row.Status = status
	row.PauseReason = pauseReason
	row.UpdatedAt = utils.UTCNow()
	return nil
}

func (r *MemoryCampaignRepo) PauseIfActive(_ context.Context, campaignID uint, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[campaignID]
	if !ok || row.Status != models.CampaignStatusActive {
		return false, nil
	}
	row.Status = models.CampaignStatusPaused
	row.PauseReason = &reason
	row.UpdatedAt = utils.UTCNow()
	return true, nil
}

func (r *MemoryCampaignRepo) SetLastScheduledAt(_ context.Context, campaignID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[campaignID]; ok {
		row.LastScheduledAt = &at
	}
	return nil
}

func (r *MemoryCampaignRepo) matches(row *models.Campaign, f models.CampaignFilter) bool {
	if f.ID != nil && row.ID != *f.ID {
		return false
	}
	if f.UUID != nil && row.UUID != *f.UUID {
		return false
	}
	if f.OwnerID != nil && row.OwnerID != *f.OwnerID {
		return false
	}
	if f.AccountID != nil && row.AccountID != *f.AccountID {
		return false
	}
	if f.Type != nil && row.Type != *f.Type {
		return false
	}
	if f.Status != nil && row.Status != *f.Status {
		return false
	}
	return true
}

func (r *MemoryCampaignRepo) ByFilter(_ context.Context, filter models.CampaignFilter, _ string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, row := range r.rows {
		if r.matches(row, filter) {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *MemoryCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

// MemoryQueuedMessageRepo implements repository.QueuedMessageRepository in memory
type MemoryQueuedMessageRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.QueuedMessage
	nextID uint
}

func NewMemoryQueuedMessageRepo() *MemoryQueuedMessageRepo {
	return &MemoryQueuedMessageRepo{rows: make(map[uint]*models.QueuedMessage), nextID: 1}
}

func (r *MemoryQueuedMessageRepo) ByID(_ context.Context, id uint) (*models.QueuedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryQueuedMessageRepo) Save(_ context.Context, msg *models.QueuedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == 0 {
		msg.ID = r.nextID
		r.nextID++
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = utils.UTCNow()
	}
	clone := *msg
	r.rows[msg.ID] = &clone
	return nil
}

func (r *MemoryQueuedMessageRepo) SaveBatch(ctx context.Context, msgs []*models.QueuedMessage) error {
	for _, m := range msgs {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryQueuedMessageRepo) ClaimDue(_ context.Context, now time.Time, batchSize int) ([]*models.QueuedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.QueuedMessage
	for _, row := range r.rows {
		if row.Status == models.QueueStatusPending && !row.ScheduledFor.After(now) {
			due = append(due, row)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		if !due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[j].ScheduledFor)
		}
		return due[i].ID < due[j].ID
	})
	if batchSize > 0 && len(due) > batchSize {
		due = due[:batchSize]
	}
	out := make([]*models.QueuedMessage, 0, len(due))
	for _, row := range due {
		row.Status = models.QueueStatusProcessing
		row.ClaimedAt = utils.UTCNowPtr()
		clone := *row
		out = append(out, &clone)
	}
	return out, nil
}

func (r *MemoryQueuedMessageRepo) ReclaimStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.Status == models.QueueStatusProcessing && row.ClaimedAt != nil && row.ClaimedAt.Before(claimedBefore) {
			row.Status = models.QueueStatusPending
			row.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *MemoryQueuedMessageRepo) Requeue(_ context.Context, messageID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[messageID]; ok && row.Status == models.QueueStatusProcessing {
		row.Status = models.QueueStatusPending
		row.ScheduledFor = at
		row.ClaimedAt = nil
	}
	return nil
}

func (r *MemoryQueuedMessageRepo) RetryLater(_ context.Context, messageID uint, attempts int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[messageID]; ok && row.Status == models.QueueStatusProcessing {
		row.Status = models.QueueStatusPending
		row.Attempts = attempts
		row.ScheduledFor = at
		row.ClaimedAt = nil
	}
	return nil
}

func (r *MemoryQueuedMessageRepo) MarkSent(_ context.Context, messageID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[messageID]; ok && row.Status == models.QueueStatusProcessing {
		row.Status = models.QueueStatusSent
		row.ClaimedAt = nil
	}
	return nil
}

func (r *MemoryQueuedMessageRepo) MarkFailed(_ context.Context, messageID uint, attempts int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[messageID]; ok && row.Status == models.QueueStatusProcessing {
		row.Status = models.QueueStatusFailed
		row.Attempts = attempts
		row.ErrorMessage = &errorMessage
		row.ClaimedAt = nil
	}
	return nil
}

func (r *MemoryQueuedMessageRepo) CountForCampaignSince(_ context.Context, campaignID uint, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.CampaignID == campaignID && row.Status != models.QueueStatusFailed && !row.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryQueuedMessageRepo) CountByStatus(_ context.Context) (map[models.QueueStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[models.QueueStatus]int64)
	for _, row := range r.rows {
		out[row.Status]++
	}
	return out, nil
}

func (r *MemoryQueuedMessageRepo) matches(row *models.QueuedMessage, f models.QueuedMessageFilter) bool {
	if f.ID != nil && row.ID != *f.ID {
		return false
	}
	if f.CampaignID != nil && row.CampaignID != *f.CampaignID {
		return false
	}
	if f.AccountID != nil && row.AccountID != *f.AccountID {
		return false
	}
	if f.Recipient != nil && row.Recipient != *f.Recipient {
		return false
	}
	if f.Status != nil && row.Status != *f.Status {
		return false
	}
	return true
}

func (r *MemoryQueuedMessageRepo) ByFilter(_ context.Context, filter models.QueuedMessageFilter, _ string, limit, offset int) ([]*models.QueuedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QueuedMessage
	for _, row := range r.rows {
		if r.matches(row, filter) {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *MemoryQueuedMessageRepo) Count(ctx context.Context, filter models.QueuedMessageFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

// MemoryDeliveryLogRepo implements repository.DeliveryLogRepository in memory
type MemoryDeliveryLogRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.DeliveryLog
	nextID uint
}

func NewMemoryDeliveryLogRepo() *MemoryDeliveryLogRepo {
	return &MemoryDeliveryLogRepo{rows: make(map[uint]*models.DeliveryLog), nextID: 1}
}

func (r *MemoryDeliveryLogRepo) ByID(_ context.Context, id uint) (*models.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryDeliveryLogRepo) ByProviderMessageID(_ context.Context, providerMessageID string) (*models.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ProviderMessageID == providerMessageID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryDeliveryLogRepo) ByProviderMessageIDForUpdate(ctx context.Context, providerMessageID string) (*models.DeliveryLog, error) {
	return r.ByProviderMessageID(ctx, providerMessageID)
}

func (r *MemoryDeliveryLogRepo) Save(_ context.Context, log *models.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if log.ID == 0 {
		log.ID = r.nextID
		r.nextID++
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = utils.UTCNow()
	}
	clone := *log
	r.rows[log.ID] = &clone
	return nil
}

func (r *MemoryDeliveryLogRepo) SaveBatch(ctx context.Context, logs []*models.DeliveryLog) error {
	for _, l := range logs {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryDeliveryLogRepo) Update(ctx context.Context, log *models.DeliveryLog) error {
	return r.Save(ctx, log)
}

func (r *MemoryDeliveryLogRepo) WindowAggregate(_ context.Context, campaignID uint, since time.Time) (*models.DeliveryWindowAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg := &models.DeliveryWindowAggregate{}
	for _, row := range r.rows {
		if row.CampaignID != campaignID || row.SentAt.Before(since) {
			continue
		}
		agg.TotalSent++
		switch row.Status {
		case models.DeliveryStatusBounced:
			agg.Bounced++
		case models.DeliveryStatusSpam:
			agg.SpamComplaints++
		}
	}
	return agg, nil
}

func (r *MemoryDeliveryLogRepo) CountByStatusForCampaign(_ context.Context, campaignID uint) (map[models.DeliveryStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[models.DeliveryStatus]int64)
	for _, row := range r.rows {
		if row.CampaignID == campaignID {
			out[row.Status]++
		}
	}
	return out, nil
}

func (r *MemoryDeliveryLogRepo) matches(row *models.DeliveryLog, f models.DeliveryLogFilter) bool {
	if f.ID != nil && row.ID != *f.ID {
		return false
	}
	if f.CampaignID != nil && row.CampaignID != *f.CampaignID {
		return false
	}
	if f.AccountID != nil && row.AccountID != *f.AccountID {
		return false
	}
	if f.Recipient != nil && row.Recipient != *f.Recipient {
		return false
	}
	if f.Status != nil && row.Status != *f.Status {
		return false
	}
	if f.SentAfter != nil && row.SentAt.Before(*f.SentAfter) {
		return false
	}
	if f.SentBefore != nil && !row.SentAt.Before(*f.SentBefore) {
		return false
	}
	return true
}

func (r *MemoryDeliveryLogRepo) ByFilter(_ context.Context, filter models.DeliveryLogFilter, _ string, limit, offset int) ([]*models.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DeliveryLog
	for _, row := range r.rows {
		if r.matches(row, filter) {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *MemoryDeliveryLogRepo) Count(ctx context.Context, filter models.DeliveryLogFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

// MemorySuppressionRepo implements repository.SuppressionRepository in memory
type MemorySuppressionRepo struct {
	mu     sync.Mutex
	rows   map[string]*models.SuppressionEntry
	nextID uint
}

func NewMemorySuppressionRepo() *MemorySuppressionRepo {
	return &MemorySuppressionRepo{rows: make(map[string]*models.SuppressionEntry), nextID: 1}
}

func (r *MemorySuppressionRepo) ByID(_ context.Context, id uint) (*models.SuppressionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemorySuppressionRepo) Save(ctx context.Context, entry *models.SuppressionEntry) error {
	_, err := r.AddIfAbsent(ctx, entry)
	return err
}

func (r *MemorySuppressionRepo) SaveBatch(ctx context.Context, entries []*models.SuppressionEntry) error {
	for _, e := range entries {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemorySuppressionRepo) Exists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[strings.ToLower(strings.TrimSpace(email))]
	return ok, nil
}

func (r *MemorySuppressionRepo) AddIfAbsent(_ context.Context, entry *models.SuppressionEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(entry.Email))
	if _, ok := r.rows[key]; ok {
		return false, nil
	}
	entry.ID = r.nextID
	r.nextID++
	entry.Email = key
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = utils.UTCNow()
	}
	clone := *entry
	r.rows[key] = &clone
	return true, nil
}

func (r *MemorySuppressionRepo) Size(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.rows)), nil
}

func (r *MemorySuppressionRepo) ByFilter(_ context.Context, filter models.SuppressionEntryFilter, _ string, limit, offset int) ([]*models.SuppressionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SuppressionEntry
	for _, row := range r.rows {
		if filter.Email != nil && row.Email != strings.ToLower(strings.TrimSpace(*filter.Email)) {
			continue
		}
		if filter.Source != nil && row.Source != *filter.Source {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *MemorySuppressionRepo) Count(ctx context.Context, filter models.SuppressionEntryFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

// MemoryEmailAccountRepo implements repository.EmailAccountRepository in memory
type MemoryEmailAccountRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.EmailAccount
	nextID uint
}

func NewMemoryEmailAccountRepo() *MemoryEmailAccountRepo {
	return &MemoryEmailAccountRepo{rows: make(map[uint]*models.EmailAccount), nextID: 1}
}

func (r *MemoryEmailAccountRepo) ByID(_ context.Context, id uint) (*models.EmailAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryEmailAccountRepo) Save(_ context.Context, account *models.EmailAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		account.ID = r.nextID
		r.nextID++
	}
	clone := *account
	r.rows[account.ID] = &clone
	return nil
}

func (r *MemoryEmailAccountRepo) SaveBatch(ctx context.Context, accounts []*models.EmailAccount) error {
	for _, a := range accounts {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryEmailAccountRepo) UpdateCredentials(_ context.Context, accountID uint, encryptedAccess, encryptedRefresh []byte, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[accountID]
	if !ok {
		return nil
	}
	row.EncryptedAccessToken = encryptedAccess
	row.EncryptedRefreshToken = encryptedRefresh
	row.TokenExpiresAt = expiresAt
	row.Status = models.AccountStatusActive
	return nil
}

func (r *MemoryEmailAccountRepo) SetStatus(_ context.Context, accountID uint, status models.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[accountID]; ok {
		row.Status = status
	}
	return nil
}

func (r *MemoryEmailAccountRepo) ByFilter(_ context.Context, filter models.EmailAccountFilter, _ string, limit, offset int) ([]*models.EmailAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.EmailAccount
	for _, row := range r.rows {
		if filter.ID != nil && row.ID != *filter.ID {
			continue
		}
		if filter.OwnerID != nil && row.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Email != nil && row.Email != *filter.Email {
			continue
		}
		if filter.Provider != nil && row.Provider != *filter.Provider {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *MemoryEmailAccountRepo) Count(ctx context.Context, filter models.EmailAccountFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

// MemoryProspectRepo implements repository.ProspectRepository in memory
type MemoryProspectRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Prospect
	nextID uint
}

func NewMemoryProspectRepo() *MemoryProspectRepo {
	return &MemoryProspectRepo{rows: make(map[uint]*models.Prospect), nextID: 1}
}

func (r *MemoryProspectRepo) ByID(_ context.Context, id uint) (*models.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryProspectRepo) Save(_ context.Context, prospect *models.Prospect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prospect.ID == 0 {
		prospect.ID = r.nextID
		r.nextID++
	}
	clone := *prospect
	r.rows[prospect.ID] = &clone
	return nil
}

func (r *MemoryProspectRepo) SaveBatch(ctx context.Context, prospects []*models.Prospect) error {
	for _, p := range prospects {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryProspectRepo) ListEligible(_ context.Context, prospectListID uint, limit int) ([]*models.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Prospect
	for _, row := range r.rows {
		if row.ProspectListID == prospectListID && row.LastContactedAt == nil {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryProspectRepo) MarkContacted(_ context.Context, prospectIDs []uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range prospectIDs {
		if row, ok := r.rows[id]; ok {
			t := at
			row.LastContactedAt = &t
		}
	}
	return nil
}

func (r *MemoryProspectRepo) ByFilter(_ context.Context, filter models.ProspectFilter, _ string, limit, offset int) ([]*models.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Prospect
	for _, row := range r.rows {
		if filter.ID != nil && row.ID != *filter.ID {
			continue
		}
		if filter.ProspectListID != nil && row.ProspectListID != *filter.ProspectListID {
			continue
		}
		if filter.Email != nil && row.Email != *filter.Email {
			continue
		}
		if filter.Contacted != nil && *filter.Contacted != (row.LastContactedAt != nil) {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *MemoryProspectRepo) Count(ctx context.Context, filter models.ProspectFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

// MemoryAuditLogRepo implements repository.AuditLogRepository in memory
type MemoryAuditLogRepo struct {
	mu     sync.Mutex
	rows   []*models.AuditLog
	nextID uint
}

func NewMemoryAuditLogRepo() *MemoryAuditLogRepo {
	return &MemoryAuditLogRepo{nextID: 1}
}

func (r *MemoryAuditLogRepo) ByID(_ context.Context, id uint) (*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryAuditLogRepo) Save(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = r.nextID
	r.nextID++
	if log.CreatedAt.IsZero() {
		log.CreatedAt = utils.UTCNow()
	}
	clone := *log
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *MemoryAuditLogRepo) SaveBatch(ctx context.Context, logs []*models.AuditLog) error {
	for _, l := range logs {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryAuditLogRepo) ByFilter(_ context.Context, filter models.AuditLogFilter, _ string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, row := range r.rows {
		if filter.CampaignID != nil && (row.CampaignID == nil || *row.CampaignID != *filter.CampaignID) {
			continue
		}
		if filter.AccountID != nil && (row.AccountID == nil || *row.AccountID != *filter.AccountID) {
			continue
		}
		if filter.Action != nil && row.Action != *filter.Action {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	return paginate(out, limit, offset), nil
}

func (r *MemoryAuditLogRepo) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func paginate[T any](rows []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// Interface conformance checks
var (
	_ repository.CampaignRepository      = (*MemoryCampaignRepo)(nil)
	_ repository.QueuedMessageRepository = (*MemoryQueuedMessageRepo)(nil)
	_ repository.DeliveryLogRepository   = (*MemoryDeliveryLogRepo)(nil)
	_ repository.SuppressionRepository   = (*MemorySuppressionRepo)(nil)
	_ repository.EmailAccountRepository  = (*MemoryEmailAccountRepo)(nil)
	_ repository.ProspectRepository      = (*MemoryProspectRepo)(nil)
	_ repository.AuditLogRepository      = (*MemoryAuditLogRepo)(nil)
)
