package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/auctionhouse/internal/cache/memory"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

func TestClientFilters(t *testing.T) {
	c := &client{
		subs:         map[string]bool{domain.ChannelAuction: true, "ch:s*": true},
		consignments: map[uint64]bool{},
	}
	require.True(t, c.wants(domain.ChannelAuction, 4))
	require.True(t, c.wants(domain.ChannelSale, 4))
	require.True(t, c.wants(domain.ChannelSettlement, 4))
	require.False(t, c.wants(domain.ChannelConfig, 0))

	c.handleControl(controlMsg{Action: "watch", Consignments: []uint64{7}})
	require.False(t, c.wants(domain.ChannelAuction, 4))
	require.True(t, c.wants(domain.ChannelAuction, 7))

	c.handleControl(controlMsg{Action: "unsubscribe", Channels: []string{domain.ChannelAuction}})
	require.False(t, c.wants(domain.ChannelAuction, 7))
}

func TestConsignmentOf(t *testing.T) {
	data, err := json.Marshal(domain.Event{Type: domain.EventBidAccepted, ConsignmentID: 12})
	require.NoError(t, err)
	require.Equal(t, uint64(12), consignmentOf(data))
	require.Zero(t, consignmentOf([]byte("not json")))
}

func TestReplayOverWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memcache.NewSignalBus(0)
	for _, id := range []uint64{1, 2, 1} {
		data, err := json.Marshal(domain.Event{Type: domain.EventBidAccepted, ConsignmentID: id})
		require.NoError(t, err)
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamMarket, data))
	}

	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "memory"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "hub_status", status.Type)

	require.NoError(t, conn.WriteJSON(controlMsg{Action: "watch", Consignments: []uint64{1}}))
	require.NoError(t, conn.WriteJSON(controlMsg{Action: "replay", LastID: "0"}))

	var got []uint64
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == "replay_done" {
			require.Equal(t, "3-0", msg["last_id"])
			break
		}
		got = append(got, uint64(msg["consignment_id"].(float64)))
	}
	require.Equal(t, []uint64{1, 1}, got)
}
