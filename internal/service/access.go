package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// AccessControl tracks which accounts hold which roles.
type AccessControl struct {
	mu      sync.RWMutex
	grants  map[domain.Role]map[common.Address]struct{}
	emitter *Emitter
	logger  *slog.Logger
}

// NewAccessControl seeds the role table from grants.
func NewAccessControl(grants map[domain.Role][]common.Address, emitter *Emitter, logger *slog.Logger) *AccessControl {
	a := &AccessControl{
		grants:  make(map[domain.Role]map[common.Address]struct{}),
		emitter: emitter,
		logger:  logger,
	}
	for role, members := range grants {
		for _, m := range members {
			a.add(role, m)
		}
	}
	return a
}

func (a *AccessControl) add(role domain.Role, account common.Address) bool {
	set, ok := a.grants[role]
	if !ok {
		set = make(map[common.Address]struct{})
		a.grants[role] = set
	}
	if _, held := set[account]; held {
		return false
	}
	set[account] = struct{}{}
	return true
}

// HasRole reports whether account holds role.
func (a *AccessControl) HasRole(account common.Address, role domain.Role) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.grants[role][account]
	return ok
}

// HasAnyRole reports whether account holds at least one of roles.
func (a *AccessControl) HasAnyRole(account common.Address, roles ...domain.Role) bool {
	for _, r := range roles {
		if a.HasRole(account, r) {
			return true
		}
	}
	return false
}

// require fails with ErrForbidden unless the caller holds one of roles.
func (a *AccessControl) require(caller domain.Caller, roles ...domain.Role) error {
	if a.HasAnyRole(caller.Sender, roles...) {
		return nil
	}
	return domain.ErrForbidden
}

// Members lists the accounts holding role in a stable order.
func (a *AccessControl) Members(role domain.Role) []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]common.Address, 0, len(a.grants[role]))
	for m := range a.grants[role] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// GrantRole gives account the role. Only admins may grant.
func (a *AccessControl) GrantRole(ctx context.Context, caller domain.Caller, role domain.Role, account common.Address) error {
	if err := a.require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Role holder must be a non-zero address")
	}
	a.mu.Lock()
	changed := a.add(role, account)
	a.mu.Unlock()
	if changed {
		a.record(ctx, caller, "role_granted", role, account)
	}
	return nil
}

// RevokeRole removes the role from account. Only admins may revoke, and the
// last admin cannot be removed.
func (a *AccessControl) RevokeRole(ctx context.Context, caller domain.Caller, role domain.Role, account common.Address) error {
	if err := a.require(caller, domain.RoleAdmin); err != nil {
		return err
	}
	a.mu.Lock()
	set := a.grants[role]
	if _, held := set[account]; !held {
		a.mu.Unlock()
		return nil
	}
	if role == domain.RoleAdmin && len(set) == 1 {
		a.mu.Unlock()
		return fmt.Errorf("%w: cannot revoke the last admin", domain.ErrInvalidInput)
	}
	delete(set, account)
	a.mu.Unlock()
	a.record(ctx, caller, "role_revoked", role, account)
	return nil
}

func (a *AccessControl) record(ctx context.Context, caller domain.Caller, action string, role domain.Role, account common.Address) {
	detail := map[string]any{
		"action":  action,
		"role":    string(role),
		"account": addr(account),
		"by":      addr(caller.Sender),
	}
	a.emitter.Audit(ctx, action, detail)
	a.emitter.Emit(ctx, event(domain.EventRoleChanged, 0, detail))
	a.logger.InfoContext(ctx, "access: "+action,
		slog.String("role", string(role)),
		slog.String("account", account.Hex()),
	)
}
