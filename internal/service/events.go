package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Notifier forwards selected market events to humans.
type Notifier interface {
	NotifyEvent(ctx context.Context, evt domain.Event) error
}

// Emitter publishes market events after an operation has committed. Every
// failure here is logged and swallowed: the operation already succeeded.
type Emitter struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	clock    domain.Clock
	logger   *slog.Logger
}

// NewEmitter creates an Emitter. bus, audit and notifier may each be nil.
func NewEmitter(bus domain.SignalBus, audit domain.AuditStore, notifier Notifier, clock domain.Clock, logger *slog.Logger) *Emitter {
	return &Emitter{
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Emit stamps and publishes each event on its channel and the market stream.
func (e *Emitter) Emit(ctx context.Context, events ...domain.Event) {
	if e == nil {
		return
	}
	for _, evt := range events {
		if evt.ID == "" {
			evt.ID = uuid.NewString()
		}
		if evt.At.IsZero() {
			evt.At = e.clock.Now().UTC()
		}
		e.publish(ctx, evt)
		if e.notifier != nil {
			if err := e.notifier.NotifyEvent(ctx, evt); err != nil {
				e.logger.WarnContext(ctx, "events: notify failed",
					slog.String("event", string(evt.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (e *Emitter) publish(ctx context.Context, evt domain.Event) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.WarnContext(ctx, "events: marshal failed",
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.bus.Publish(ctx, evt.Channel(), payload); err != nil {
		e.logger.WarnContext(ctx, "events: publish failed",
			slog.String("event", string(evt.Type)),
			slog.String("channel", evt.Channel()),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, domain.StreamMarket, payload); err != nil {
		e.logger.WarnContext(ctx, "events: stream append failed",
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Audit writes an audit log entry.
func (e *Emitter) Audit(ctx context.Context, event string, detail map[string]any) {
	if e == nil || e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "events: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func event(t domain.EventType, consignmentID uint64, data map[string]any) domain.Event {
	return domain.Event{Type: t, ConsignmentID: consignmentID, Data: data}
}

// dec renders a big.Int for event payloads without float loss.
func dec(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addr(a common.Address) string {
	return a.Hex()
}
