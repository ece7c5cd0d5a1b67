package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecodeclub/ekit/slice"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"gorm.io/gorm"
)

type JobRepository interface {
	Create(ctx context.Context, j *domain.ScheduledJob) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error)
	ListActive(ctx context.Context) ([]domain.ScheduledJob, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.JobStatus, now time.Time) (bool, error)
	Cancel(ctx context.Context, id string, now time.Time) error
	Touch(ctx context.Context, id string, now time.Time) (bool, error)
	ReleaseStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) Create(ctx context.Context, j *domain.ScheduledJob) error {
	model := jobModelFromDomain(j)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if j != nil {
		*j = *jobModelToDomain(model)
	}
	return nil
}

func (r *GormJobRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	var model ScheduledJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormJobRepo) ListActive(ctx context.Context) ([]domain.ScheduledJob, error) {
	var models []ScheduledJobModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", domain.ActiveJobStatuses).
		Order("scheduled_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return jobModelsToDomain(models), nil
}

func (r *GormJobRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error) {
	var models []ScheduledJobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", domain.JobStatusPending, now.UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return jobModelsToDomain(models), nil
}

// TransitionStatus moves a job from one status to another only if the row is
// still in the expected prior status. It reports whether this call won the update.
func (r *GormJobRepo) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.JobStatus,
	now time.Time,
) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: illegal transition %s -> %s", domain.ErrInvalidState, from, to)
	}

	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormJobRepo) Cancel(ctx context.Context, id string, now time.Time) error {
	updated, err := r.TransitionStatus(ctx, id, domain.JobStatusPending, domain.JobStatusCancelled, now)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}
	return r.explainMiss(ctx, id)
}

// Touch refreshes updated_at on a claimed job. It reports false once the
// row is no longer processing, i.e. the caller has lost the claim.
func (r *GormJobRepo) Touch(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Update("updated_at", now.UTC())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseStale returns to pending every claim whose owner has not touched it
// since olderThan. Live workers touch their claim periodically, so only
// claims of crashed workers age past the cutoff.
func (r *GormJobRepo) ReleaseStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("status = ? AND updated_at < ?", domain.JobStatusProcessing, olderThan.UTC()).
		Updates(map[string]any{
			"status":     domain.JobStatusPending,
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormJobRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusCancelled}).
		Delete(&ScheduledJobModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

// explainMiss turns a zero-row conditional write into ErrNotFound or ErrInvalidState.
func (r *GormJobRepo) explainMiss(ctx context.Context, id string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidState, id, current.Status)
}

func jobModelsToDomain(models []ScheduledJobModel) []domain.ScheduledJob {
	return slice.Map(models, func(idx int, src ScheduledJobModel) domain.ScheduledJob {
		return *jobModelToDomain(&src)
	})
}
