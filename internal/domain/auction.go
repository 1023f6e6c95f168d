package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ClockMode decides when an auction's countdown begins.
type ClockMode string

const (
	ClockLive      ClockMode = "live"      // fixed window from start
	ClockTriggered ClockMode = "triggered" // countdown starts at the first bid
)

// Valid reports whether c is a known clock mode.
func (c ClockMode) Valid() bool {
	return c == ClockLive || c == ClockTriggered
}

// State is the progress of an auction or sale. It only moves forward.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateEnded   State = "ended"
)

// rank orders states so regressions can be detected.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	case StateEnded:
		return 2
	}
	return -1
}

// Precedes reports whether s comes strictly before next.
func (s State) Precedes(next State) bool {
	return s.rank() < next.rank()
}

// Outcome is how an auction or sale finished.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeClosed   Outcome = "closed"
	OutcomeCanceled Outcome = "canceled"
)

// Audience restricts who may bid or buy.
type Audience string

const (
	AudienceOpen      Audience = "open"
	AudienceStaker    Audience = "staker"
	AudienceVipStaker Audience = "vip_staker"
)

// Valid reports whether a is a known audience.
func (a Audience) Valid() bool {
	switch a {
	case AudienceOpen, AudienceStaker, AudienceVipStaker:
		return true
	}
	return false
}

// ExtensionWindow is the minimum time, in seconds, left on an auction after
// any bid placed near its end.
const ExtensionWindow int64 = 15 * 60

// Auction is the single auction attached to a consignment.
type Auction struct {
	ConsignmentID uint64         `json:"consignment_id"`
	Buyer         common.Address `json:"buyer"`
	Start         int64          `json:"start"`    // unix seconds
	Duration      int64          `json:"duration"` // seconds
	Reserve       *big.Int       `json:"reserve"`
	Bid           *big.Int       `json:"bid"`
	Clock         ClockMode      `json:"clock"`
	Audience      Audience       `json:"audience"`
	State         State          `json:"state"`
	Outcome       Outcome        `json:"outcome"`
}

// End returns the unix second at which bidding closes.
func (a Auction) End() int64 {
	return a.Start + a.Duration
}

// StateAt returns the state as observed at unix second now. A live auction
// is running once its start time has passed; the stored state only moves on
// the first bid.
func (a Auction) StateAt(now int64) State {
	if a.State == StatePending && a.Clock == ClockLive && a.Outcome == OutcomePending && now >= a.Start {
		return StateRunning
	}
	return a.State
}

// HasBid reports whether a bid has been accepted.
func (a Auction) HasBid() bool {
	return a.Bid != nil && a.Bid.Sign() > 0
}

// Clone returns a deep copy of the auction.
func (a Auction) Clone() Auction {
	out := a
	out.Reserve = cloneInt(a.Reserve)
	out.Bid = cloneInt(a.Bid)
	return out
}
