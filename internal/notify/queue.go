package notify

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// Queue decouples market operations from chat delivery. NotifyEvent never
// blocks; events arriving while the buffer is full are dropped and logged.
type Queue struct {
	n        *Notifier
	ch       chan domain.Event
	limiter  domain.RateLimiter
	limitKey string
	logger   *slog.Logger
}

// NewQueue creates a Queue holding up to size pending events.
func NewQueue(n *Notifier, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		n:      n,
		ch:     make(chan domain.Event, size),
		logger: logger.With(slog.String("component", "notify_queue")),
	}
}

// WithLimiter throttles delivery through a shared limiter so several market
// replicas together stay under the chat APIs' limits.
func (q *Queue) WithLimiter(l domain.RateLimiter, key string) *Queue {
	q.limiter = l
	q.limitKey = key
	return q
}

// NotifyEvent enqueues evt for delivery by Run.
func (q *Queue) NotifyEvent(ctx context.Context, evt domain.Event) error {
	select {
	case q.ch <- evt:
	default:
		q.logger.WarnContext(ctx, "notification dropped",
			slog.String("event", string(evt.Type)),
			slog.Uint64("consignment_id", evt.ConsignmentID),
		)
	}
	return nil
}

// Run delivers queued events until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-q.ch:
			if q.limiter != nil {
				if err := q.limiter.Wait(ctx, q.limitKey); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					q.logger.WarnContext(ctx, "notification throttle failed",
						slog.String("event", string(evt.Type)),
						slog.String("error", err.Error()),
					)
				}
			}
			// Dispatch already logs per-sender failures.
			_ = q.n.NotifyEvent(ctx, evt)
		}
	}
}
