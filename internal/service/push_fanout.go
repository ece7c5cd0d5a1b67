package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/provider"
	"github.com/kursadbilgin/broadcast-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchConcurrency = 10
	defaultPushTimeout      = 5 * time.Second
)

// PushDeliverer fans one job out to the devices of the given users.
type PushDeliverer interface {
	Deliver(ctx context.Context, job domain.ScheduledJob, userIDs []string) FanoutResult
}

// FanoutResult aggregates the settled per-token results of one job.
type FanoutResult struct {
	Targets       int
	Delivered     int
	Transient     int
	InvalidTokens int
	Pruned        int64
	LookupFailed  bool
}

// Attempted is the number of gateway calls made.
func (r FanoutResult) Attempted() int {
	return r.Delivered + r.Transient + r.InvalidTokens
}

// Failed counts every non-delivered attempt.
func (r FanoutResult) Failed() int {
	return r.Transient + r.InvalidTokens
}

type PushFanout struct {
	devices     repository.DeviceRepository
	gateway     provider.Gateway
	limiter     ratelimit.RateLimiter
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewPushFanout(
	devices repository.DeviceRepository,
	gateway provider.Gateway,
	limiter ratelimit.RateLimiter,
	concurrency int,
	timeout time.Duration,
	logger *zap.Logger,
) (*PushFanout, error) {
	if devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("push gateway is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if concurrency < 1 {
		concurrency = defaultBatchConcurrency
	}
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PushFanout{
		devices:     devices,
		gateway:     gateway,
		limiter:     limiter,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (f *PushFanout) SetMetrics(metrics *observability.Metrics) {
	if f == nil {
		return
	}
	f.metrics = metrics
}

// Deliver sends the job to every device of userIDs with at most f.concurrency
// calls in flight. One token's failure never affects another; only tokens the
// gateway reports as invalid are deleted.
func (f *PushFanout) Deliver(ctx context.Context, job domain.ScheduledJob, userIDs []string) FanoutResult {
	logger := observability.WithContextLogger(f.logger, ctx)

	var result FanoutResult
	if len(userIDs) == 0 {
		return result
	}

	targets, err := f.devices.ListByUserIDs(ctx, userIDs)
	if err != nil {
		logger.Error("failed to load device targets, skipping push", zap.Error(err))
		result.LookupFailed = true
		return result
	}
	result.Targets = len(targets)
	if len(targets) == 0 {
		return result
	}

	outcomes := make([]provider.Outcome, len(targets))
	data := map[string]string{
		"jobId": job.ID,
		"type":  domain.InboxTypeSystem.String(),
	}

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i := range targets {
		g.Go(func() error {
			outcomes[i] = f.send(ctx, logger, targets[i], job, data)
			return nil
		})
	}
	_ = g.Wait()

	invalid := make([]string, 0)
	for i, outcome := range outcomes {
		switch outcome {
		case provider.OutcomeDelivered:
			result.Delivered++
		case provider.OutcomeInvalidToken:
			result.InvalidTokens++
			invalid = append(invalid, targets[i].Token)
		default:
			result.Transient++
		}
	}

	if len(invalid) > 0 {
		pruned, err := f.devices.DeleteByTokens(ctx, invalid)
		if err != nil {
			logger.Error("failed to prune invalid device tokens",
				zap.Int("invalidTokens", len(invalid)),
				zap.Error(err),
			)
		}
		result.Pruned = pruned
		f.metrics.AddTokensPruned(pruned)
	}

	return result
}

func (f *PushFanout) send(
	ctx context.Context,
	logger *zap.Logger,
	target domain.DeviceTarget,
	job domain.ScheduledJob,
	data map[string]string,
) provider.Outcome {
	platform := target.Platform.String()

	f.metrics.IncPushInFlight()
	defer f.metrics.DecPushInFlight()

	if err := f.limiter.Wait(ctx, target.Platform); err != nil {
		logger.Warn("push rate limiter wait failed",
			zap.String("userId", target.UserID),
			zap.String("platform", platform),
			zap.Error(err),
		)
		f.metrics.IncPushResult(platform, provider.OutcomeTransient.String())
		return provider.OutcomeTransient
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := f.now()
	_, err := f.gateway.Send(callCtx, provider.Message{
		Token:    target.Token,
		Platform: target.Platform,
		Title:    job.Title,
		Body:     job.Body,
		Data:     data,
	})
	f.metrics.ObservePushSendDuration(platform, f.now().Sub(start))

	outcome := provider.Classify(err)
	f.metrics.IncPushResult(platform, outcome.String())
	if err != nil {
		logger.Warn("push delivery failed",
			zap.String("userId", target.UserID),
			zap.String("platform", platform),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
	}
	return outcome
}
