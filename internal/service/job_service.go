package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"go.uber.org/zap"
)

// JobService is the authoring side of the scheduled notification queue.
type JobService struct {
	jobs   repository.JobRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewJobService(jobs repository.JobRepository, logger *zap.Logger) (*JobService, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobService{
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Enqueue stores a pending broadcast to fire at scheduledAt.
func (s *JobService) Enqueue(ctx context.Context, title, body string, scheduledAt time.Time) (*domain.ScheduledJob, error) {
	now := s.now().UTC()
	job := &domain.ScheduledJob{
		ID:          s.newID(),
		Title:       strings.TrimSpace(title),
		Body:        strings.TrimSpace(body),
		ScheduledAt: scheduledAt.UTC(),
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := job.Validate(now); err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create scheduled job: %w", err)
	}

	s.logger.Info("scheduled job enqueued",
		zap.String("jobId", job.ID),
		zap.Time("scheduledAt", job.ScheduledAt),
	)
	return job, nil
}

// Cancel moves a pending job to cancelled. A job already claimed by a worker
// cannot be cancelled.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}

	if err := s.jobs.Cancel(ctx, id, s.now().UTC()); err != nil {
		return err
	}

	s.logger.Info("scheduled job cancelled", zap.String("jobId", id))
	return nil
}

func (s *JobService) ListActive(ctx context.Context) ([]domain.ScheduledJob, error) {
	return s.jobs.ListActive(ctx)
}

func (s *JobService) Get(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.jobs.GetByID(ctx, id)
}

// Delete hard-deletes a pending or cancelled job.
func (s *JobService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}

	if err := s.jobs.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("scheduled job deleted", zap.String("jobId", id))
	return nil
}
