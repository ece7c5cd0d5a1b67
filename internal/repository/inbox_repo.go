package repository

import (
	"context"
	"errors"

	"github.com/ecodeclub/ekit/slice"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"gorm.io/gorm"
)

const inboxInsertBatchSize = 500

type InboxRepository interface {
	CreateBatch(ctx context.Context, entries []*domain.InboxEntry) error
	ExistsForJob(ctx context.Context, jobID string) (bool, error)
	CountForJob(ctx context.Context, jobID string) (int64, error)
	ListByRecipient(ctx context.Context, userID string, limit int) ([]domain.InboxEntry, error)
}

type GormInboxRepo struct {
	db *gorm.DB
}

func NewGormInboxRepo(db *gorm.DB) *GormInboxRepo {
	return &GormInboxRepo{db: db}
}

// CreateBatch inserts all entries in a single transaction: either every
// recipient gets an entry or none does.
func (r *GormInboxRepo) CreateBatch(ctx context.Context, entries []*domain.InboxEntry) error {
	models := make([]InboxEntryModel, 0, len(entries))
	for _, e := range entries {
		if model := inboxModelFromDomain(e); model != nil {
			models = append(models, *model)
		}
	}
	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, inboxInsertBatchSize).Error
	})
}

func (r *GormInboxRepo) ExistsForJob(ctx context.Context, jobID string) (bool, error) {
	var model InboxEntryModel
	err := r.db.WithContext(ctx).
		Select("id").
		Where("job_id = ?", jobID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *GormInboxRepo) CountForJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&InboxEntryModel{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	return count, err
}

func (r *GormInboxRepo) ListByRecipient(ctx context.Context, userID string, limit int) ([]domain.InboxEntry, error) {
	if limit < 1 {
		limit = 50
	}

	var models []InboxEntryModel
	err := r.db.WithContext(ctx).
		Where("recipient_user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return slice.Map(models, func(idx int, src InboxEntryModel) domain.InboxEntry {
		return *inboxModelToDomain(&src)
	}), nil
}
