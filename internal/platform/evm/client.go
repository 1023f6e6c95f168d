// Package evm reads staking balances and creator royalties from EVM
// contracts over JSON-RPC.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Dial opens a JSON-RPC client for endpoint.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("evm: rpc endpoint required")
	}
	c, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", trimmed, err)
	}
	return c, nil
}

// errReverted marks a call the contract rejected.
var errReverted = errors.New("evm: call reverted")

// caller packs, executes and unpacks read-only contract calls.
type caller struct {
	backend  ethereum.ContractCaller
	contract abi.ABI
}

func newCaller(backend ethereum.ContractCaller, abiJSON string) caller {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("evm: bad abi: %v", err))
	}
	return caller{backend: backend, contract: parsed}
}

func (c caller) call(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	input, err := c.contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("evm: pack %s: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			return nil, fmt.Errorf("%w: %s on %s: %v", errReverted, method, to.Hex(), err)
		}
		return nil, fmt.Errorf("evm: call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s on %s: empty result", errReverted, method, to.Hex())
	}
	values, err := c.contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack %s: %w", method, err)
	}
	return values, nil
}

func asBig(v any) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("evm: expected uint256, got %T", v)
	}
	return n, nil
}
