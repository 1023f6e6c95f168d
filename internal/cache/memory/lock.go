// Package memory provides in-process implementations of the cache
// interfaces for tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// KeyedLock is a LockManager holding one mutex per key. Acquire blocks until
// the key is free or ctx is done; the ttl is ignored since a crashed holder
// takes the whole process with it.
type KeyedLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ domain.LockManager = (*KeyedLock)(nil)

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{slots: make(map[string]chan struct{})}
}

func (l *KeyedLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *KeyedLock) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
