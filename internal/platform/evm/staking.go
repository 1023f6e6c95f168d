package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// StakingOracle reports staked balances as the balanceOf of a staking token.
type StakingOracle struct {
	c     caller
	token common.Address
}

var _ domain.StakingOracle = (*StakingOracle)(nil)

// NewStakingOracle reads balances from the ERC-20 compatible staking token.
func NewStakingOracle(backend ethereum.ContractCaller, token common.Address) *StakingOracle {
	return &StakingOracle{c: newCaller(backend, erc20ABI), token: token}
}

func (o *StakingOracle) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := o.c.call(ctx, o.token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBig(out[0])
}
