package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ecodeclub/ekit/slice"
	"github.com/google/uuid"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultClaimBatchSize  = 50
	defaultStaleClaimAfter = 15 * time.Minute
)

// Trigger sources recorded per dispatch pass.
const (
	TriggerTicker = "ticker"
	TriggerQueue  = "queue"
	TriggerHTTP   = "http"
	TriggerCLI    = "cli"
	TriggerManual = "manual"
)

// DispatchConfig is passed to the worker explicitly; the worker never reads
// the environment itself.
// Push concurrency and timeouts belong to the PushDeliverer.
type DispatchConfig struct {
	ClaimBatchSize  int
	StaleClaimAfter time.Duration
	// HeartbeatInterval is how often a claimed job's updated_at is refreshed
	// while it is dispatched. It must stay well below StaleClaimAfter.
	HeartbeatInterval time.Duration
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.ClaimBatchSize < 1 {
		c.ClaimBatchSize = defaultClaimBatchSize
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = defaultStaleClaimAfter
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.StaleClaimAfter {
		c.HeartbeatInterval = c.StaleClaimAfter / 3
	}
	return c
}

// Summary is the result of one dispatch pass. Total counts the due jobs
// selected; Skipped counts the ones another worker claimed first.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// JobReport describes what one job's dispatch produced.
type JobReport struct {
	JobID        string
	AlreadySent  bool
	Recipients   int
	OptedOut     int
	InboxCreated int
	Push         FanoutResult
}

// Dispatcher runs dispatch passes. Implemented by DispatchWorker.
type Dispatcher interface {
	Run(ctx context.Context, trigger string) (Summary, error)
}

type DispatchWorker struct {
	jobs        repository.JobRepository
	inbox       repository.InboxRepository
	users       repository.UserRepository
	preferences repository.PreferenceRepository
	push        PushDeliverer
	cfg         DispatchConfig
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	newID       func() string
}

func NewDispatchWorker(
	jobs repository.JobRepository,
	inbox repository.InboxRepository,
	users repository.UserRepository,
	preferences repository.PreferenceRepository,
	push PushDeliverer,
	cfg DispatchConfig,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if jobs == nil || inbox == nil || users == nil || preferences == nil {
		return nil, fmt.Errorf("job, inbox, user and preference repositories are required")
	}
	if push == nil {
		return nil, fmt.Errorf("push deliverer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		jobs:        jobs,
		inbox:       inbox,
		users:       users,
		preferences: preferences,
		push:        push,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

func (w *DispatchWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// RunOnce runs a single dispatch pass with no trigger label.
func (w *DispatchWorker) RunOnce(ctx context.Context) (Summary, error) {
	return w.Run(ctx, TriggerManual)
}

// Run claims due jobs and dispatches each one. Safe to call concurrently
// from any number of processes: a job is only processed by the caller whose
// conditional claim succeeded. An error is returned only when due jobs could
// not be selected; per-job failures are counted in the summary.
func (w *DispatchWorker) Run(ctx context.Context, trigger string) (Summary, error) {
	ctx = observability.WithRunID(ctx, w.newID())
	logger := observability.WithContextLogger(w.logger, ctx)
	start := w.now()
	defer func() {
		w.metrics.ObserveDispatchRun(trigger, w.now().Sub(start))
	}()

	now := start.UTC()
	released, err := w.jobs.ReleaseStale(ctx, now.Add(-w.cfg.StaleClaimAfter), now)
	if err != nil {
		logger.Error("failed to release stale claims", zap.Error(err))
	} else if released > 0 {
		logger.Warn("released stale claims back to pending", zap.Int64("released", released))
		w.metrics.AddStaleReleased(released)
	}

	due, err := w.jobs.GetDue(ctx, now, w.cfg.ClaimBatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to select due jobs: %w", err)
	}

	summary := Summary{Total: len(due)}
	for i := range due {
		if ctx.Err() != nil {
			logger.Warn("dispatch pass interrupted", zap.Error(ctx.Err()))
			break
		}

		switch w.claimAndDispatch(ctx, due[i]) {
		case jobProcessed:
			summary.Processed++
		case jobSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	w.metrics.IncJobs(observability.JobResultProcessed, summary.Processed)
	w.metrics.IncJobs(observability.JobResultFailed, summary.Failed)
	w.metrics.IncJobs(observability.JobResultSkipped, summary.Skipped)

	logger.Info("dispatch pass finished",
		zap.String("trigger", trigger),
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

type jobResult int

const (
	jobProcessed jobResult = iota
	jobSkipped
	jobFailed
)

func (w *DispatchWorker) claimAndDispatch(ctx context.Context, job domain.ScheduledJob) jobResult {
	ctx = observability.WithJobID(ctx, job.ID)
	logger := observability.WithContextLogger(w.logger, ctx)

	won, err := w.jobs.TransitionStatus(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, w.now().UTC())
	if err != nil {
		logger.Error("failed to claim job", zap.Error(err))
		return jobFailed
	}
	if !won {
		logger.Debug("job already claimed by another worker")
		return jobSkipped
	}
	job.Status = domain.JobStatusProcessing

	report, err := w.dispatchClaimed(ctx, logger, job)
	if err != nil {
		logger.Error("job dispatch failed, releasing claim", zap.Error(err))
		w.rollback(ctx, logger, job.ID)
		return jobFailed
	}

	logger.Info("job dispatched",
		zap.Bool("alreadySent", report.AlreadySent),
		zap.Int("recipients", report.Recipients),
		zap.Int("optedOut", report.OptedOut),
		zap.Int("inboxCreated", report.InboxCreated),
		zap.Int("pushTargets", report.Push.Targets),
		zap.Int("pushAttempted", report.Push.Attempted()),
		zap.Int("pushDelivered", report.Push.Delivered),
		zap.Int("pushFailed", report.Push.Failed()),
		zap.Int64("tokensPruned", report.Push.Pruned),
	)
	return jobProcessed
}

var errClaimLost = errors.New("job claim lost")

// dispatchClaimed keeps the claim alive while the job is dispatched, then
// finalizes it. A panic in any step becomes an error so the claim is
// released and the remaining jobs still run.
func (w *DispatchWorker) dispatchClaimed(ctx context.Context, logger *zap.Logger, job domain.ScheduledJob) (report JobReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while dispatching job %s: %v", job.ID, r)
		}
	}()

	claimCtx, stopHeartbeat := w.keepClaim(ctx, logger, job.ID)
	defer stopHeartbeat()

	report, err = w.dispatch(claimCtx, job)
	lost := errors.Is(context.Cause(claimCtx), errClaimLost)
	stopHeartbeat()

	if lost {
		return report, fmt.Errorf("%w: job %s was released while dispatching", domain.ErrInvalidState, job.ID)
	}
	if err != nil {
		return report, err
	}
	return report, w.finalize(ctx, job.ID)
}

// keepClaim touches the claimed row every HeartbeatInterval until stop is
// called. The returned context is cancelled with errClaimLost if the row
// stops being processing under us. Stop is idempotent and waits for the
// heartbeat goroutine to exit.
func (w *DispatchWorker) keepClaim(ctx context.Context, logger *zap.Logger, jobID string) (context.Context, func()) {
	claimCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-claimCtx.Done():
				return
			case <-ticker.C:
				touched, err := w.jobs.Touch(claimCtx, jobID, w.now().UTC())
				switch {
				case err != nil:
					if claimCtx.Err() == nil {
						logger.Warn("failed to refresh job claim", zap.Error(err))
					}
				case !touched:
					logger.Error("job claim lost while dispatching")
					cancel(errClaimLost)
					return
				}
			}
		}
	}()

	var once sync.Once
	return claimCtx, func() {
		once.Do(func() {
			cancel(nil)
			<-done
		})
	}
}

func (w *DispatchWorker) dispatch(ctx context.Context, job domain.ScheduledJob) (JobReport, error) {
	report := JobReport{JobID: job.ID}

	// Entries for this job mean an earlier pass crashed after the inbox write.
	exists, err := w.inbox.ExistsForJob(ctx, job.ID)
	if err != nil {
		return report, fmt.Errorf("failed to check existing inbox entries: %w", err)
	}
	if exists {
		report.AlreadySent = true
		return report, nil
	}

	userIDs, err := w.users.ListUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	optedOut, err := w.preferences.OptedOutUserIDs(ctx, domain.CategorySystem)
	if err != nil {
		return report, fmt.Errorf("failed to load delivery preferences: %w", err)
	}
	recipients := excludeUsers(userIDs, optedOut)
	report.Recipients = len(recipients)
	report.OptedOut = len(userIDs) - len(recipients)

	if len(recipients) > 0 {
		entries := w.inboxEntries(job, recipients)
		if err := w.inbox.CreateBatch(ctx, entries); err != nil {
			return report, fmt.Errorf("failed to write inbox entries: %w", err)
		}
		report.InboxCreated = len(entries)
		w.metrics.AddInboxEntries(len(entries))
	}

	// Push is best effort once the inbox entries are committed.
	report.Push = w.push.Deliver(ctx, job, recipients)

	return report, nil
}

func (w *DispatchWorker) finalize(ctx context.Context, jobID string) error {
	won, err := w.jobs.TransitionStatus(ctx, jobID, domain.JobStatusProcessing, domain.JobStatusSent, w.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	if !won {
		return fmt.Errorf("%w: job %s left processing before finalize", domain.ErrInvalidState, jobID)
	}
	return nil
}

func (w *DispatchWorker) rollback(ctx context.Context, logger *zap.Logger, jobID string) {
	// The pass context may be cancelled; the rollback must still land.
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	won, err := w.jobs.TransitionStatus(rollbackCtx, jobID, domain.JobStatusProcessing, domain.JobStatusPending, w.now().UTC())
	if err != nil {
		logger.Error("failed to release job claim", zap.Error(err))
		return
	}
	if !won {
		logger.Warn("job was no longer processing at rollback")
	}
}

func (w *DispatchWorker) inboxEntries(job domain.ScheduledJob, recipients []string) []*domain.InboxEntry {
	createdAt := w.now().UTC()
	jobID := job.ID
	payload := domain.InboxPayload{
		Title: job.Title,
		Body:  job.Body,
		JobID: job.ID,
	}

	return slice.Map(recipients, func(idx int, userID string) *domain.InboxEntry {
		return &domain.InboxEntry{
			ID:              w.newID(),
			Type:            domain.InboxTypeSystem,
			RecipientUserID: userID,
			JobID:           &jobID,
			Payload:         payload,
			CreatedAt:       createdAt,
		}
	})
}

// excludeUsers keeps the order of userIDs and drops every id in excluded.
func excludeUsers(userIDs, excluded []string) []string {
	if len(excluded) == 0 {
		return userIDs
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	return slice.FilterMap(userIDs, func(idx int, id string) (string, bool) {
		_, drop := skip[id]
		return id, !drop
	})
}
