package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/Susanoo/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SuppressionRepositoryImpl implements SuppressionRepository
type SuppressionRepositoryImpl struct {
	*BaseRepository[models.SuppressionEntry, models.SuppressionEntryFilter]
}

func NewSuppressionRepository(db *gorm.DB) SuppressionRepository {
	return &SuppressionRepositoryImpl{BaseRepository: NewBaseRepository[models.SuppressionEntry, models.SuppressionEntryFilter](db)}
}

func (r *SuppressionRepositoryImpl) Exists(ctx context.Context, email string) (bool, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.SuppressionEntry{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check suppression for %s: %w", email, err)
	}
	return count > 0, nil
}

func (r *SuppressionRepositoryImpl) AddIfAbsent(ctx context.Context, entry *models.SuppressionEntry) (bool, error) {
	db := r.getDB(ctx)
	entry.Email = strings.ToLower(strings.TrimSpace(entry.Email))
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return false, fmt.Errorf("failed to add suppression entry: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *SuppressionRepositoryImpl) Size(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.SuppressionEntry{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SuppressionRepositoryImpl) applyFilter(db *gorm.DB, f models.SuppressionEntryFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Email != nil {
		db = db.Where("email = ?", strings.ToLower(strings.TrimSpace(*f.Email)))
	}
	if f.Source != nil {
		db = db.Where("source = ?", *f.Source)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *SuppressionRepositoryImpl) ByFilter(ctx context.Context, filter models.SuppressionEntryFilter, orderBy string, limit, offset int) ([]*models.SuppressionEntry, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.SuppressionEntry{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.SuppressionEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SuppressionRepositoryImpl) Count(ctx context.Context, filter models.SuppressionEntryFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.SuppressionEntry{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
