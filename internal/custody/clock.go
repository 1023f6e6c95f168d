package custody

import (
	"sync"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

var _ domain.Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ domain.Clock = (*ManualClock)(nil)

// NewManualClock starts the clock at unix second sec.
func NewManualClock(sec int64) *ManualClock {
	return &ManualClock{now: time.Unix(sec, 0).UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to unix second sec.
func (c *ManualClock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(sec, 0).UTC()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
