package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(ctx, "consignment:1", time.Second)
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestKeyedLockHonoursContext(t *testing.T) {
	l := NewKeyedLock()
	unlock, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer unlock()

	other, err := l.Acquire(context.Background(), "other", time.Second)
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSignalBusPublishAndStream(t *testing.T) {
	bus := NewSignalBus(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "ch:auction")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "ch:auction", []byte("bid")))
	select {
	case msg := <-sub:
		require.Equal(t, "bid", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, "stream:market", []byte(p)))
	}
	msgs, err := bus.StreamRead(ctx, "stream:market", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "b", string(msgs[0].Payload))

	msgs, err = bus.StreamRead(ctx, "stream:market", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "c", string(msgs[0].Payload))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "api:1.2.3.4", 2, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "api:1.2.3.4", 2, time.Second)
	require.False(t, ok)

	ok, _ = rl.Allow(ctx, "api:5.6.7.8", 2, time.Second)
	require.True(t, ok)

	now = now.Add(600 * time.Millisecond)
	ok, _ = rl.Allow(ctx, "api:1.2.3.4", 2, time.Second)
	require.True(t, ok)
}
