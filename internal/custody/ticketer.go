package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Ticket is a claim on a physical item held by the escrow agent.
type Ticket struct {
	ConsignmentID uint64
	Amount        uint64
	Holder        common.Address
}

// Ticketer issues claim tickets. A lots ticketer issues one ticket per
// release; an items ticketer issues one ticket per unit.
type Ticketer struct {
	kind    domain.TicketerType
	mu      sync.Mutex
	tickets []Ticket
}

var (
	_ domain.EscrowTicketer = (*Ticketer)(nil)
	_ domain.TicketRevoker  = (*Ticketer)(nil)
)

func NewTicketer(kind domain.TicketerType) *Ticketer {
	return &Ticketer{kind: kind}
}

func (t *Ticketer) IssueTicket(_ context.Context, consignmentID uint64, amount uint64, recipient common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.kind == domain.TicketerItems {
		for i := uint64(0); i < amount; i++ {
			t.tickets = append(t.tickets, Ticket{ConsignmentID: consignmentID, Amount: 1, Holder: recipient})
		}
		return nil
	}
	t.tickets = append(t.tickets, Ticket{ConsignmentID: consignmentID, Amount: amount, Holder: recipient})
	return nil
}

// RevokeTicket removes the most recent tickets matching an issue call.
func (t *Ticketer) RevokeTicket(_ context.Context, consignmentID uint64, amount uint64, recipient common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := amount
	for i := len(t.tickets) - 1; i >= 0 && remaining > 0; i-- {
		tk := t.tickets[i]
		if tk.ConsignmentID != consignmentID || tk.Holder != recipient || tk.Amount > remaining {
			continue
		}
		remaining -= tk.Amount
		t.tickets = append(t.tickets[:i], t.tickets[i+1:]...)
	}
	if remaining != 0 {
		return fmt.Errorf("custody: %d units of consignment %d not ticketed to %s", remaining, consignmentID, recipient.Hex())
	}
	return nil
}

// Tickets returns the tickets currently issued.
func (t *Ticketer) Tickets() []Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Ticket(nil), t.tickets...)
}
