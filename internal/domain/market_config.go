package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BasisPoints is the fixed-point denominator for every percentage: 10000 = 100%.
const BasisPoints = 10_000

// MarketConfiguration holds the process-wide market parameters.
type MarketConfiguration struct {
	StakingAddress                 common.Address `json:"staking_address"`
	MultisigAddress                common.Address `json:"multisig_address"`
	NativeTokenAddress             common.Address `json:"native_token_address"`
	VipStakerAmount                *big.Int       `json:"vip_staker_amount"`
	PrimaryFeeBps                  uint16         `json:"primary_fee_bps"`
	SecondaryFeeBps                uint16         `json:"secondary_fee_bps"`
	MaxRoyaltyBps                  uint16         `json:"max_royalty_bps"`
	OutBidBps                      uint16         `json:"outbid_bps"`
	DefaultTicketer                TicketerType   `json:"default_ticketer"`
	AllowExternalTokensOnSecondary bool           `json:"allow_external_tokens_on_secondary"`
	Version                        uint64         `json:"version"`
	UpdatedAt                      time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the configuration.
func (m MarketConfiguration) Clone() MarketConfiguration {
	out := m
	out.VipStakerAmount = cloneInt(m.VipStakerAmount)
	return out
}

// FeeBps resolves the fee for a consignment: its custom override when set,
// otherwise the default for its market.
func (m MarketConfiguration) FeeBps(c Consignment) uint16 {
	if c.CustomFeeBps != 0 {
		return c.CustomFeeBps
	}
	if c.Market == MarketPrimary {
		return m.PrimaryFeeBps
	}
	return m.SecondaryFeeBps
}

// MinimumOutbid returns the smallest bid that beats current.
func (m MarketConfiguration) MinimumOutbid(current *big.Int) *big.Int {
	return new(big.Int).Add(current, ApplyBps(current, m.OutBidBps))
}

// ApplyBps returns amount*bps/10000 with truncating division.
func ApplyBps(amount *big.Int, bps uint16) *big.Int {
	if amount == nil || bps == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Quo(out, big.NewInt(BasisPoints))
}

// ValidBps reports whether v lies in [0, 10000].
func ValidBps(v uint64) bool {
	return v <= BasisPoints
}
