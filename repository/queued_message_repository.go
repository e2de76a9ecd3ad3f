package repository

import (
	"context"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
)

// QueuedMessageRepositoryImpl implements QueuedMessageRepository
type QueuedMessageRepositoryImpl struct {
	*BaseRepository[models.QueuedMessage, models.QueuedMessageFilter]
}

func NewQueuedMessageRepository(db *gorm.DB) QueuedMessageRepository {
	return &QueuedMessageRepositoryImpl{BaseRepository: NewBaseRepository[models.QueuedMessage, models.QueuedMessageFilter](db)}
}

// ClaimDue selects due pending rows and claims each with a conditional
// update. Only rows whose status was still pending at update time are
// returned, so two concurrent drain calls can never claim the same row.
func (r *QueuedMessageRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, batchSize int) ([]*models.QueuedMessage, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	db := r.getDB(ctx)

	var candidates []*models.QueuedMessage
	if err := db.Where("status = ? AND scheduled_for <= ?", models.QueueStatusPending, now).
		Order("priority DESC, scheduled_for ASC, id ASC").
		Limit(batchSize).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]*models.QueuedMessage, 0, len(candidates))
	for _, msg := range candidates {
		res := db.Model(&models.QueuedMessage{}).
			Where("id = ? AND status = ?", msg.ID, models.QueueStatusPending).
			Updates(map[string]any{
				"status":     models.QueueStatusProcessing,
				"claimed_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			msg.Status = models.QueueStatusProcessing
			msg.ClaimedAt = &now
			claimed = append(claimed, msg)
		}
	}
	return claimed, nil
}

func (r *QueuedMessageRepositoryImpl) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.QueuedMessage{}).
		Where("status = ? AND claimed_at < ?", models.QueueStatusProcessing, claimedBefore).
		Updates(map[string]any{
			"status":     models.QueueStatusPending,
			"claimed_at": nil,
			"updated_at": utils.UTCNow(),
		})
	return res.RowsAffected, res.Error
}

func (r *QueuedMessageRepositoryImpl) Requeue(ctx context.Context, messageID uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusProcessing).
		Updates(map[string]any{
			"status":        models.QueueStatusPending,
			"scheduled_for": at,
			"claimed_at":    nil,
			"updated_at":    utils.UTCNow(),
		}).Error
}

func (r *QueuedMessageRepositoryImpl) RetryLater(ctx context.Context, messageID uint, attempts int, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusProcessing).
		Updates(map[string]any{
			"status":        models.QueueStatusPending,
			"attempts":      attempts,
			"scheduled_for": at,
			"claimed_at":    nil,
			"updated_at":    utils.UTCNow(),
		}).Error
}

func (r *QueuedMessageRepositoryImpl) MarkSent(ctx context.Context, messageID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusProcessing).
		Updates(map[string]any{
			"status":     models.QueueStatusSent,
			"claimed_at": nil,
			"updated_at": utils.UTCNow(),
		}).Error
}

func (r *QueuedMessageRepositoryImpl) MarkFailed(ctx context.Context, messageID uint, attempts int, errorMessage string) error {
	db := r.getDB(ctx)
	return db.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", messageID, models.QueueStatusProcessing).
		Updates(map[string]any{
			"status":        models.QueueStatusFailed,
			"attempts":      attempts,
			"error_message": errorMessage,
			"claimed_at":    nil,
			"updated_at":    utils.UTCNow(),
		}).Error
}

// CountForCampaignSince counts messages created for a campaign since the
// given instant, excluding terminal failures. Used against dailyVolume so
// already-scheduled work counts toward the cap.
func (r *QueuedMessageRepositoryImpl) CountForCampaignSince(ctx context.Context, campaignID uint, since time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.QueuedMessage{}).
		Where("campaign_id = ? AND created_at >= ? AND status <> ?", campaignID, since, models.QueueStatusFailed).
		Count(&count).Error
	return count, err
}

func (r *QueuedMessageRepositoryImpl) CountByStatus(ctx context.Context) (map[models.QueueStatus]int64, error) {
	db := r.getDB(ctx)
	var rows []struct {
		Status models.QueueStatus
		Total  int64
	}
	if err := db.Model(&models.QueuedMessage{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[models.QueueStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *QueuedMessageRepositoryImpl) applyFilter(db *gorm.DB, f models.QueuedMessageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.AccountID != nil {
		db = db.Where("account_id = ?", *f.AccountID)
	}
	if f.Recipient != nil {
		db = db.Where("recipient = ?", *f.Recipient)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *QueuedMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.QueuedMessageFilter, orderBy string, limit, offset int) ([]*models.QueuedMessage, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.QueuedMessage{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.QueuedMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *QueuedMessageRepositoryImpl) Count(ctx context.Context, filter models.QueuedMessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.QueuedMessage{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
