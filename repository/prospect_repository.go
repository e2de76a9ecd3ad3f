package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/models"
	"gorm.io/gorm"
)

// ProspectRepositoryImpl implements ProspectRepository
type ProspectRepositoryImpl struct {
	*BaseRepository[models.Prospect, models.ProspectFilter]
}

func NewProspectRepository(db *gorm.DB) ProspectRepository {
	return &ProspectRepositoryImpl{BaseRepository: NewBaseRepository[models.Prospect, models.ProspectFilter](db)}
}

func (r *ProspectRepositoryImpl) ListEligible(ctx context.Context, prospectListID uint, limit int) ([]*models.Prospect, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Prospect{}).
		Where("prospect_list_id = ? AND last_contacted_at IS NULL", prospectListID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*models.Prospect
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list eligible prospects for list %d: %w", prospectListID, err)
	}
	return rows, nil
}

func (r *ProspectRepositoryImpl) MarkContacted(ctx context.Context, prospectIDs []uint, at time.Time) error {
	if len(prospectIDs) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	result := db.Model(&models.Prospect{}).
		Where("id IN ?", prospectIDs).
		Update("last_contacted_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to mark prospects contacted: %w", result.Error)
	}
	return nil
}

func (r *ProspectRepositoryImpl) applyFilter(db *gorm.DB, f models.ProspectFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ProspectListID != nil {
		db = db.Where("prospect_list_id = ?", *f.ProspectListID)
	}
	if f.Email != nil {
		db = db.Where("email = ?", *f.Email)
	}
	if f.Contacted != nil {
		if *f.Contacted {
			db = db.Where("last_contacted_at IS NOT NULL")
		} else {
			db = db.Where("last_contacted_at IS NULL")
		}
	}
	return db
}

func (r *ProspectRepositoryImpl) ByFilter(ctx context.Context, filter models.ProspectFilter, orderBy string, limit, offset int) ([]*models.Prospect, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Prospect{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Prospect
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProspectRepositoryImpl) Count(ctx context.Context, filter models.ProspectFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Prospect{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
