package domain

import (
	"math/big"
)

// Sale is a fixed-price listing attached to a consignment.
type Sale struct {
	ConsignmentID uint64   `json:"consignment_id"`
	Start         int64    `json:"start"`
	Price         *big.Int `json:"price"`      // per unit
	PerTxCap      uint64   `json:"per_tx_cap"` // max units per buy
	Audience      Audience `json:"audience"`
	State         State    `json:"state"`
	Outcome       Outcome  `json:"outcome"`
	Buyers        int      `json:"buyers"`
}

// Clone returns a deep copy of the sale.
func (s Sale) Clone() Sale {
	out := s
	out.Price = cloneInt(s.Price)
	return out
}
