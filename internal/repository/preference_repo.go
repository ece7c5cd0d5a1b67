package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository interface {
	Upsert(ctx context.Context, p domain.DeliveryPreference) error
	OptedOutUserIDs(ctx context.Context, category domain.Category) ([]string, error)
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) Upsert(ctx context.Context, p domain.DeliveryPreference) error {
	model := &PreferenceModel{
		UserID:    p.UserID,
		Category:  p.Category,
		Enabled:   p.Enabled,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "category"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).
		Create(model).Error
}

// OptedOutUserIDs lists users who explicitly disabled the category.
func (r *GormPreferenceRepo) OptedOutUserIDs(ctx context.Context, category domain.Category) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&PreferenceModel{}).
		Where("category = ? AND enabled = ?", category, false).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
