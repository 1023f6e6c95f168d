package domain

import (
	"context"
	"time"
)

// RateLimiter throttles API clients and outbound notifications. Allow
// consumes one request from key's budget of limit per window; Wait blocks
// until the limiter's own budget for key admits one more.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager serialises operations on one consignment across every market
// replica. Acquire returns ErrLockHeld when the key stays taken past the
// caller's patience; in-process implementations may simply block.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one market event read back from the durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries market events: fire-and-forget pub/sub per channel for
// live subscribers plus an append-only stream for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
