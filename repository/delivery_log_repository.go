package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryLogRepositoryImpl implements DeliveryLogRepository
type DeliveryLogRepositoryImpl struct {
	*BaseRepository[models.DeliveryLog, models.DeliveryLogFilter]
}

func NewDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &DeliveryLogRepositoryImpl{BaseRepository: NewBaseRepository[models.DeliveryLog, models.DeliveryLogFilter](db)}
}

func (r *DeliveryLogRepositoryImpl) ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.DeliveryLog, error) {
	db := r.getDB(ctx)
	var row models.DeliveryLog
	if err := db.Where("provider_message_id = ?", providerMessageID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByProviderMessageIDForUpdate takes a row lock so concurrent webhook
// deliveries for the same message serialize instead of losing counter
// updates. Must run inside a transaction.
func (r *DeliveryLogRepositoryImpl) ByProviderMessageIDForUpdate(ctx context.Context, providerMessageID string) (*models.DeliveryLog, error) {
	db := r.getDB(ctx)
	var row models.DeliveryLog
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_message_id = ?", providerMessageID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *DeliveryLogRepositoryImpl) Update(ctx context.Context, log *models.DeliveryLog) error {
	db := r.getDB(ctx)
	log.UpdatedAt = utils.UTCNow()
	return db.Save(log).Error
}

func (r *DeliveryLogRepositoryImpl) WindowAggregate(ctx context.Context, campaignID uint, since time.Time) (*models.DeliveryWindowAggregate, error) {
	db := r.getDB(ctx)
	var agg models.DeliveryWindowAggregate
	err := db.Model(&models.DeliveryLog{}).
		Select(
			"COUNT(*) AS total_sent, "+
				"COUNT(*) FILTER (WHERE status = ?) AS bounced, "+
				"COUNT(*) FILTER (WHERE status = ?) AS spam_complaints",
			models.DeliveryStatusBounced, models.DeliveryStatusSpam,
		).
		Where("campaign_id = ? AND sent_at >= ?", campaignID, since).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *DeliveryLogRepositoryImpl) CountByStatusForCampaign(ctx context.Context, campaignID uint) (map[models.DeliveryStatus]int64, error) {
	db := r.getDB(ctx)
	var rows []struct {
		Status models.DeliveryStatus
		Total  int64
	}
	if err := db.Model(&models.DeliveryLog{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[models.DeliveryStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *DeliveryLogRepositoryImpl) applyFilter(db *gorm.DB, f models.DeliveryLogFilter) *gorm.DB {
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
	if f.SentAfter != nil {
		db = db.Where("sent_at >= ?", *f.SentAfter)
	}
	if f.SentBefore != nil {
		db = db.Where("sent_at < ?", *f.SentBefore)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *DeliveryLogRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryLogFilter, orderBy string, limit, offset int) ([]*models.DeliveryLog, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DeliveryLog{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.DeliveryLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeliveryLogRepositoryImpl) Count(ctx context.Context, filter models.DeliveryLogFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DeliveryLog{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
