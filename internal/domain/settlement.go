package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Settlement is the recorded outcome of one royalty, fee and seller waterfall.
type Settlement struct {
	ID               string         `json:"id"`
	ConsignmentID    uint64         `json:"consignment_id"`
	Market           Market         `json:"market"`
	Gross            *big.Int       `json:"gross"`
	Royalty          *big.Int       `json:"royalty"`
	RoyaltyRecipient common.Address `json:"royalty_recipient"`
	FeeBps           uint16         `json:"fee_bps"`
	Fee              *big.Int       `json:"fee"`
	MultisigShare    *big.Int       `json:"multisig_share"`
	StakingShare     *big.Int       `json:"staking_share"`
	SellerAmount     *big.Int       `json:"seller_amount"`
	Seller           common.Address `json:"seller"`
	Dust             *big.Int       `json:"dust"` // fee remainder lost to the half split
	SettledAt        time.Time      `json:"settled_at"`
}
