package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/utils"
	"gorm.io/gorm"
)

// EmailAccountRepositoryImpl implements EmailAccountRepository
type EmailAccountRepositoryImpl struct {
	*BaseRepository[models.EmailAccount, models.EmailAccountFilter]
}

func NewEmailAccountRepository(db *gorm.DB) EmailAccountRepository {
	return &EmailAccountRepositoryImpl{BaseRepository: NewBaseRepository[models.EmailAccount, models.EmailAccountFilter](db)}
}

func (r *EmailAccountRepositoryImpl) UpdateCredentials(ctx context.Context, accountID uint, encryptedAccess, encryptedRefresh []byte, expiresAt time.Time) error {
	db := r.getDB(ctx)
	result := db.Model(&models.EmailAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"encrypted_access_token":  encryptedAccess,
			"encrypted_refresh_token": encryptedRefresh,
			"token_expires_at":        expiresAt,
			"status":                  models.AccountStatusActive,
			"updated_at":              utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update credentials for account %d: %w", accountID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}
	return nil
}

func (r *EmailAccountRepositoryImpl) SetStatus(ctx context.Context, accountID uint, status models.AccountStatus) error {
	db := r.getDB(ctx)
	result := db.Model(&models.EmailAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set status for account %d: %w", accountID, result.Error)
	}
	return nil
}

func (r *EmailAccountRepositoryImpl) applyFilter(db *gorm.DB, f models.EmailAccountFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.OwnerID != nil {
		db = db.Where("owner_id = ?", *f.OwnerID)
	}
	if f.Email != nil {
		db = db.Where("email = ?", *f.Email)
	}
	if f.Provider != nil {
		db = db.Where("provider = ?", *f.Provider)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.ExpiresAfter != nil {
		db = db.Where("token_expires_at >= ?", *f.ExpiresAfter)
	}
	if f.ExpiresBefore != nil {
		db = db.Where("token_expires_at < ?", *f.ExpiresBefore)
	}
	return db
}

func (r *EmailAccountRepositoryImpl) ByFilter(ctx context.Context, filter models.EmailAccountFilter, orderBy string, limit, offset int) ([]*models.EmailAccount, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.EmailAccount{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.EmailAccount
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EmailAccountRepositoryImpl) Count(ctx context.Context, filter models.EmailAccountFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.EmailAccount{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
