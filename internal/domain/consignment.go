package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Market distinguishes a creator's first sale from a resale.
type Market string

const (
	MarketPrimary   Market = "primary"
	MarketSecondary Market = "secondary"
)

// Valid reports whether m is a known market type.
func (m Market) Valid() bool {
	return m == MarketPrimary || m == MarketSecondary
}

// MarketHandler records which engine has claimed a consignment.
type MarketHandler string

const (
	HandlerUnhandled MarketHandler = "unhandled"
	HandlerAuction   MarketHandler = "auction"
	HandlerSale      MarketHandler = "sale"
)

// TicketerType selects the escrow ticketer used to release physical items.
type TicketerType string

const (
	TicketerDefault TicketerType = "default" // use the market-wide default
	TicketerLots    TicketerType = "lots"
	TicketerItems   TicketerType = "items"
)

// Valid reports whether t is a known ticketer type.
func (t TicketerType) Valid() bool {
	switch t {
	case TicketerDefault, TicketerLots, TicketerItems:
		return true
	}
	return false
}

// Consignment is one escrowed token position made available to the market.
type Consignment struct {
	ID             uint64         `json:"id"`
	Market         Market         `json:"market"`
	MarketHandler  MarketHandler  `json:"market_handler"`
	Consignor      common.Address `json:"consignor"`
	Seller         common.Address `json:"seller"`
	TokenAddress   common.Address `json:"token_address"`
	TokenID        *big.Int       `json:"token_id"`
	Supply         uint64         `json:"supply"`
	ReleasedSupply uint64         `json:"released_supply"`
	MultiToken     bool           `json:"multi_token"`
	Physical       bool           `json:"physical"`
	Released       bool           `json:"released"`
	CustomFeeBps   uint16         `json:"custom_fee_bps"` // 0 = market default
	PendingPayout  *big.Int       `json:"pending_payout"`
	Ticketer       TicketerType   `json:"ticketer"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UnreleasedSupply returns the units still held in escrow.
func (c Consignment) UnreleasedSupply() uint64 {
	if c.ReleasedSupply >= c.Supply {
		return 0
	}
	return c.Supply - c.ReleasedSupply
}

// Clone returns a deep copy so snapshots never share big.Int storage.
func (c Consignment) Clone() Consignment {
	out := c
	out.TokenID = cloneInt(c.TokenID)
	out.PendingPayout = cloneInt(c.PendingPayout)
	return out
}

// cloneInt copies v, treating nil as zero.
func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
