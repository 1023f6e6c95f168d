package domain

import "time"

// EventType names a market notification.
type EventType string

const (
	EventConsignmentRegistered EventType = "consignment_registered"
	EventConsignmentMarketed   EventType = "consignment_marketed"
	EventConsignmentReleased   EventType = "consignment_released"
	EventConsignmentUpdated    EventType = "consignment_updated"
	EventAuctionCreated        EventType = "auction_created"
	EventAuctionAudience       EventType = "auction_audience_changed"
	EventBidAccepted           EventType = "bid_accepted"
	EventBidReturned           EventType = "bid_returned"
	EventAuctionExtended       EventType = "auction_extended"
	EventAuctionClosed         EventType = "auction_closed"
	EventAuctionCanceled       EventType = "auction_canceled"
	EventSaleCreated           EventType = "sale_created"
	EventSaleAudience          EventType = "sale_audience_changed"
	EventPurchase              EventType = "purchase"
	EventSaleClosed            EventType = "sale_closed"
	EventSaleCanceled          EventType = "sale_canceled"
	EventSettlement            EventType = "settlement"
	EventMarketConfigChanged   EventType = "market_config_changed"
	EventRoleChanged           EventType = "role_changed"
)

// Pub/sub channels events are published on.
const (
	ChannelConsignment = "ch:consignment"
	ChannelAuction     = "ch:auction"
	ChannelSale        = "ch:sale"
	ChannelSettlement  = "ch:settlement"
	ChannelConfig      = "ch:config"

	// StreamMarket is the durable stream holding every event.
	StreamMarket = "stream:market"
)

// Event is a market notification emitted after a successful operation.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	ConsignmentID uint64         `json:"consignment_id"`
	Data          map[string]any `json:"data,omitempty"`
	At            time.Time      `json:"at"`
}

// Channel returns the pub/sub channel for the event type.
func (e Event) Channel() string {
	switch e.Type {
	case EventConsignmentRegistered, EventConsignmentMarketed, EventConsignmentReleased, EventConsignmentUpdated:
		return ChannelConsignment
	case EventSaleCreated, EventSaleAudience, EventPurchase, EventSaleClosed, EventSaleCanceled:
		return ChannelSale
	case EventSettlement:
		return ChannelSettlement
	case EventMarketConfigChanged, EventRoleChanged:
		return ChannelConfig
	default:
		return ChannelAuction
	}
}
