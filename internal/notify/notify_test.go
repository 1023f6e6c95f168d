package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

type recordingSender struct {
	name string
	err  error
	sent []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.sent = append(s.sent, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilters(t *testing.T) {
	ctx := context.Background()
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())

	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventBidAccepted, ConsignmentID: 1}))
	require.Empty(t, s.sent)

	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventAuctionClosed, ConsignmentID: 1}))
	require.Equal(t, []string{"Auction closed #1"}, s.sent)

	all := NewNotifier([]Sender{s}, []string{"*"}, discard())
	require.NoError(t, all.NotifyEvent(ctx, domain.Event{Type: domain.EventBidAccepted, ConsignmentID: 2}))
	require.Equal(t, "New bid #2", s.sent[len(s.sent)-1])

	only := NewNotifier([]Sender{s}, []string{" purchase "}, discard())
	require.NoError(t, only.NotifyEvent(ctx, domain.Event{Type: domain.EventAuctionClosed}))
	require.Len(t, s.sent, 2)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, []string{"*"}, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.ErrorContains(t, err, "bad: down")
	require.Len(t, good.sent, 1)
}

func TestFormatSortsKeys(t *testing.T) {
	title, body := Format(domain.Event{
		Type:          domain.EventSettlement,
		ConsignmentID: 9,
		Data:          map[string]any{"seller_amount": "732", "gross": "1500"},
	})
	require.Equal(t, "Settlement #9", title)
	require.Equal(t, "gross: 1500\nseller_amount: 732", body)

	title, _ = Format(domain.Event{Type: domain.EventRoleChanged, ConsignmentID: 0})
	require.Equal(t, "role changed #0", title)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottok/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Auction closed #1", "bid: 1500"))
	require.Equal(t, "42", got["chat_id"])
	require.Equal(t, "*Auction closed #1*\nbid: 1500", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.ErrorContains(t, err, "unexpected status 429: slow down")
}

func TestQueueDeliversAndDrops(t *testing.T) {
	s := &recordingSender{name: "rec"}
	q := NewQueue(NewNotifier([]Sender{s}, []string{"*"}, discard()), 1, discard())
	ctx := context.Background()

	require.NoError(t, q.NotifyEvent(ctx, domain.Event{Type: domain.EventPurchase, ConsignmentID: 1}))
	require.NoError(t, q.NotifyEvent(ctx, domain.Event{Type: domain.EventPurchase, ConsignmentID: 2}))
	require.Len(t, q.ch, 1)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = q.Run(runCtx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.Equal(t, []string{"Purchase #1"}, s.sent)
}

type countingLimiter struct {
	keys []string
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return nil
}

func TestQueueWaitsOnSharedLimiter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	lim := &countingLimiter{}
	q := NewQueue(NewNotifier([]Sender{s}, []string{"*"}, discard()), 4, discard()).WithLimiter(lim, "notify:chat")
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.NotifyEvent(ctx, domain.Event{Type: domain.EventPurchase, ConsignmentID: 3}))
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.Equal(t, []string{"notify:chat"}, lim.keys)
}
