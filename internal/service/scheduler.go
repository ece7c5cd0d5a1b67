package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/broadcast-dispatch/internal/observability"
	"github.com/kursadbilgin/broadcast-dispatch/internal/queue"
	"go.uber.org/zap"
)

const defaultDispatchInterval = time.Minute

// Scheduler runs a dispatch pass on start and then on every tick.
type Scheduler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
	interval   time.Duration
}

func NewScheduler(dispatcher Dispatcher, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.dispatcher.Run(ctx, TriggerTicker); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled dispatch pass failed", zap.Error(err))
	}
}

// TriggerHandler runs a dispatch pass for each consumed trigger. Overlap with
// the ticker is safe: every job is claimed by exactly one pass.
func TriggerHandler(dispatcher Dispatcher, logger *zap.Logger) queue.TriggerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, msg queue.TriggerMessage) error {
		summary, err := dispatcher.Run(ctx, TriggerQueue)
		if err != nil {
			return fmt.Errorf("dispatch pass for trigger %s failed: %w", msg.TriggerID, err)
		}

		logger.Info("trigger handled",
			zap.String("triggerId", msg.TriggerID),
			zap.String("source", msg.Source),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
		)
		return nil
	}
}

// TriggerService publishes "run now" requests for the admin surface.
type TriggerService struct {
	publisher queue.Publisher
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
}

func NewTriggerService(publisher queue.Publisher) (*TriggerService, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &TriggerService{
		publisher: publisher,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (s *TriggerService) Trigger(ctx context.Context, source string) (queue.TriggerMessage, error) {
	msg := queue.TriggerMessage{
		TriggerID:   s.newID(),
		Source:      source,
		RequestedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.metrics.IncTriggerPublished("error")
		return queue.TriggerMessage{}, fmt.Errorf("failed to publish dispatch trigger: %w", err)
	}
	s.metrics.IncTriggerPublished("ok")
	return msg, nil
}

func (s *TriggerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}
