package domain

import "github.com/ethereum/go-ethereum/common"

// Role is a capability granted to an account.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleEscrowAgent   Role = "escrow_agent"
	RoleSeller        Role = "seller"
	RoleMinter        Role = "minter"
	RoleMarketHandler Role = "market_handler"
)

// Caller identifies who invoked an operation. Sender is the immediate caller
// and Origin the account that started the call chain.
type Caller struct {
	Sender common.Address
	Origin common.Address
}

// NewCaller returns a caller acting directly from an externally owned account.
func NewCaller(addr common.Address) Caller {
	return Caller{Sender: addr, Origin: addr}
}

// IsContract reports whether the call was relayed through another account.
func (c Caller) IsContract() bool {
	return c.Sender != c.Origin
}
