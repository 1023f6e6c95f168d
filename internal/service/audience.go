package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// AudienceGate decides whether an account may bid on or buy a restricted
// listing.
type AudienceGate struct {
	staking domain.StakingOracle
	config  *MarketConfig
}

// NewAudienceGate creates an AudienceGate.
func NewAudienceGate(staking domain.StakingOracle, config *MarketConfig) *AudienceGate {
	return &AudienceGate{staking: staking, config: config}
}

// IsEligible reports whether account belongs to audience. The staking oracle
// is only consulted for restricted audiences.
func (g *AudienceGate) IsEligible(ctx context.Context, audience domain.Audience, account common.Address) (bool, error) {
	switch audience {
	case domain.AudienceOpen:
		return true, nil
	case domain.AudienceStaker, domain.AudienceVipStaker:
	default:
		return false, domain.WithReason(domain.ErrInvalidInput, "Unknown audience")
	}

	balance, err := g.staking.BalanceOf(ctx, account)
	if err != nil {
		return false, fmt.Errorf("audience: staking balance: %w", err)
	}
	if balance == nil {
		return false, nil
	}
	if audience == domain.AudienceStaker {
		return balance.Sign() > 0, nil
	}
	threshold := g.config.Snapshot().VipStakerAmount
	return balance.Cmp(threshold) >= 0, nil
}

// check returns ErrNotStaker or ErrNotVipStaker when account is excluded.
func (g *AudienceGate) check(ctx context.Context, audience domain.Audience, account common.Address) error {
	ok, err := g.IsEligible(ctx, audience, account)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if audience == domain.AudienceVipStaker {
		return domain.ErrNotVipStaker
	}
	return domain.ErrNotStaker
}
