package repository

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// inClauseChunk keeps IN (...) lists under driver bind-parameter limits.
const inClauseChunk = 500

type DeviceRepository interface {
	Register(ctx context.Context, d *domain.DeviceTarget) error
	ListByUserIDs(ctx context.Context, userIDs []string) ([]domain.DeviceTarget, error)
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
}

type GormDeviceRepo struct {
	db *gorm.DB
}

func NewGormDeviceRepo(db *gorm.DB) *GormDeviceRepo {
	return &GormDeviceRepo{db: db}
}

// Register stores a device token, moving it to the given user if it was
// previously registered by someone else on the same device.
func (r *GormDeviceRepo) Register(ctx context.Context, d *domain.DeviceTarget) error {
	model := deviceModelFromDomain(d)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
		}).
		Create(model).Error
}

func (r *GormDeviceRepo) ListByUserIDs(ctx context.Context, userIDs []string) ([]domain.DeviceTarget, error) {
	targets := make([]domain.DeviceTarget, 0, len(userIDs))
	for _, chunk := range chunkStrings(userIDs, inClauseChunk) {
		var models []DeviceTargetModel
		err := r.db.WithContext(ctx).
			Where("user_id IN ?", chunk).
			Order("user_id ASC, created_at ASC").
			Find(&models).Error
		if err != nil {
			return nil, err
		}
		for i := range models {
			targets = append(targets, *deviceModelToDomain(&models[i]))
		}
	}
	return targets, nil
}

// DeleteByTokens removes tokens chunk by chunk; a failing chunk does not stop the rest.
func (r *GormDeviceRepo) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	var (
		deleted int64
		errs    *multierror.Error
	)
	for _, chunk := range chunkStrings(tokens, inClauseChunk) {
		result := r.db.WithContext(ctx).
			Where("token IN ?", chunk).
			Delete(&DeviceTargetModel{})
		if result.Error != nil {
			errs = multierror.Append(errs, result.Error)
			continue
		}
		deleted += result.RowsAffected
	}
	return deleted, errs.ErrorOrNil()
}

func chunkStrings(values []string, size int) [][]string {
	if len(values) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
