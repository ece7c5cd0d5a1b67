package queue

import (
	"context"
	"time"
)

// Publisher publishes dispatch triggers to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg TriggerMessage) error
	Close() error
}

// TriggerHandler handles one consumed dispatch trigger.
type TriggerHandler func(ctx context.Context, msg TriggerMessage) error

// Consumer consumes dispatch triggers.
type Consumer interface {
	Consume(ctx context.Context, handler TriggerHandler) error
	Close() error
}

const (
	// TriggerQueue carries "run a dispatch pass now" requests from cron or the admin surface.
	TriggerQueue = "dispatch.trigger"
	// TriggerDLQ receives triggers that failed twice or expired unconsumed.
	TriggerDLQ = "dlq.dispatch.trigger"

	triggerRoutingKey = "dispatch.trigger"

	// A trigger nobody consumed within this window is stale; the ticker will have covered it.
	triggerTTL = 5 * time.Minute
)
