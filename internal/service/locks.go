package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/metrics"
)

const (
	// lockTTL bounds how long a crashed holder can block a consignment.
	lockTTL = 30 * time.Second
	// lockPoll is the retry interval while another holder owns the lock.
	lockPoll = 25 * time.Millisecond
)

// consignmentLocks serializes mutations per consignment id.
type consignmentLocks struct {
	locks   domain.LockManager
	metrics *metrics.Market
}

func lockKey(consignmentID uint64) string {
	return fmt.Sprintf("consignment:%d", consignmentID)
}

// acquire blocks until the consignment lock is held or ctx is done.
func (l consignmentLocks) acquire(ctx context.Context, consignmentID uint64) (func(), error) {
	started := time.Now()
	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()

	for {
		unlock, err := l.locks.Acquire(ctx, lockKey(consignmentID), lockTTL)
		if err == nil {
			l.metrics.ObserveLockWait(time.Since(started))
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("lock consignment %d: %w", consignmentID, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock consignment %d: %w", consignmentID, ctx.Err())
		case <-ticker.C:
		}
	}
}
