package redis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyPrefix(t *testing.T) {
	require.Equal(t, "lock:consignment:7", (&Client{}).key("lock", "consignment:7"))
	require.Equal(t, "auctions:ratelimit:api:1.2.3.4",
		(&Client{prefix: "auctions"}).key("ratelimit", "api:1.2.3.4"))
}

func TestHasPattern(t *testing.T) {
	require.True(t, hasPattern("ch:*"))
	require.False(t, hasPattern("ch:auction"))
}

func TestPayloadBytes(t *testing.T) {
	got, ok := payloadBytes("abc")
	require.True(t, ok)
	require.Equal(t, []byte("abc"), got)

	got, ok = payloadBytes([]byte("xyz"))
	require.True(t, ok)
	require.Equal(t, []byte("xyz"), got)

	_, ok = payloadBytes(42)
	require.False(t, ok)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	require.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
