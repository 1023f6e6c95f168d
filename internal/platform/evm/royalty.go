package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

const eip2981ABI = `[
{"inputs":[{"name":"interfaceId","type":"bytes4"}],"name":"supportsInterface","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"tokenId","type":"uint256"},{"name":"salePrice","type":"uint256"}],"name":"royaltyInfo","outputs":[{"name":"receiver","type":"address"},{"name":"royaltyAmount","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// royaltyInterfaceID is the ERC-165 id of EIP-2981.
var royaltyInterfaceID = [4]byte{0x2a, 0x55, 0x20, 0x5a}

// RoyaltyRegistry resolves creator royalties through EIP-2981. Tokens that
// do not advertise the interface report no creator.
type RoyaltyRegistry struct {
	c caller
}

var _ domain.RoyaltyRegistry = (*RoyaltyRegistry)(nil)

// NewRoyaltyRegistry queries token contracts through backend.
func NewRoyaltyRegistry(backend ethereum.ContractCaller) *RoyaltyRegistry {
	return &RoyaltyRegistry{c: newCaller(backend, eip2981ABI)}
}

// RoyaltyInfo asks for the royalty on a sale price of 10000 so the returned
// amount is the rate in basis points.
func (r *RoyaltyRegistry) RoyaltyInfo(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, uint16, error) {
	out, err := r.c.call(ctx, token, "supportsInterface", royaltyInterfaceID)
	if errors.Is(err, errReverted) {
		return common.Address{}, 0, nil
	}
	if err != nil {
		return common.Address{}, 0, err
	}
	if ok, _ := out[0].(bool); !ok {
		return common.Address{}, 0, nil
	}

	out, err = r.c.call(ctx, token, "royaltyInfo", tokenID, big.NewInt(domain.BasisPoints))
	if err != nil {
		return common.Address{}, 0, err
	}
	receiver, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, 0, fmt.Errorf("evm: royaltyInfo receiver: unexpected %T", out[0])
	}
	amount, err := asBig(out[1])
	if err != nil {
		return common.Address{}, 0, err
	}
	if amount.Cmp(big.NewInt(domain.BasisPoints)) > 0 {
		amount = big.NewInt(domain.BasisPoints)
	}
	return receiver, uint16(amount.Uint64()), nil
}
