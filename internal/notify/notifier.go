// Package notify forwards market events to chat channels. Events are
// formatted once and dispatched to every registered Sender (Telegram,
// Discord), filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultEvents are forwarded when no filter is configured.
var DefaultEvents = []domain.EventType{
	domain.EventAuctionClosed,
	domain.EventAuctionCanceled,
	domain.EventSaleClosed,
	domain.EventSettlement,
}

// Notifier dispatches market events to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders. Only event types in
// events are forwarded; an empty list means DefaultEvents and "*" means all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool)
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	if len(allowed) == 0 {
		for _, e := range DefaultEvents {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyEvent forwards evt when its type passes the filter.
func (n *Notifier) NotifyEvent(ctx context.Context, evt domain.Event) error {
	if !n.events["*"] && !n.events[evt.Type] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(evt.Type)))
		return nil
	}
	title, message := Format(evt)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a free-form notification regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. One sender failing does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var titles = map[domain.EventType]string{
	domain.EventAuctionClosed:   "Auction closed",
	domain.EventAuctionCanceled: "Auction canceled",
	domain.EventAuctionExtended: "Auction extended",
	domain.EventBidAccepted:     "New bid",
	domain.EventSaleClosed:      "Sale closed",
	domain.EventSaleCanceled:    "Sale canceled",
	domain.EventPurchase:        "Purchase",
	domain.EventSettlement:      "Settlement",
}

// Format renders evt as a title and a "key: value" body sorted by key.
func Format(evt domain.Event) (string, string) {
	title, ok := titles[evt.Type]
	if !ok {
		title = strings.ReplaceAll(string(evt.Type), "_", " ")
	}
	title = fmt.Sprintf("%s #%d", title, evt.ConsignmentID)

	keys := make([]string, 0, len(evt.Data))
	for k := range evt.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, evt.Data[k])
	}
	return title, strings.TrimSuffix(b.String(), "\n")
}
