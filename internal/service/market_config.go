package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// MarketConfigPatch is a partial configuration update. Nil fields are left
// unchanged. Percentages are wide so out-of-range input is caught before
// narrowing.
type MarketConfigPatch struct {
	StakingAddress                 *common.Address      `json:"staking_address,omitempty"`
	MultisigAddress                *common.Address      `json:"multisig_address,omitempty"`
	VipStakerAmount                *big.Int             `json:"vip_staker_amount,omitempty"`
	PrimaryFeeBps                  *uint64              `json:"primary_fee_bps,omitempty"`
	SecondaryFeeBps                *uint64              `json:"secondary_fee_bps,omitempty"`
	MaxRoyaltyBps                  *uint64              `json:"max_royalty_bps,omitempty"`
	OutBidBps                      *uint64              `json:"outbid_bps,omitempty"`
	DefaultTicketer                *domain.TicketerType `json:"default_ticketer,omitempty"`
	AllowExternalTokensOnSecondary *bool                `json:"allow_external_tokens_on_secondary,omitempty"`
}

// MarketConfig holds the live market configuration. Readers get an
// immutable snapshot; writers replace it atomically.
type MarketConfig struct {
	current atomic.Pointer[domain.MarketConfiguration]
	writeMu sync.Mutex

	store   domain.MarketConfigStore
	access  *AccessControl
	emitter *Emitter
	clock   domain.Clock
	logger  *slog.Logger
}

// NewMarketConfig loads the persisted configuration, or validates and
// persists initial when none exists yet.
func NewMarketConfig(
	ctx context.Context,
	initial domain.MarketConfiguration,
	store domain.MarketConfigStore,
	access *AccessControl,
	emitter *Emitter,
	clock domain.Clock,
	logger *slog.Logger,
) (*MarketConfig, error) {
	m := &MarketConfig{
		store:   store,
		access:  access,
		emitter: emitter,
		clock:   clock,
		logger:  logger,
	}

	stored, err := store.Get(ctx)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "market_config: loaded persisted configuration",
			slog.Uint64("version", stored.Version),
		)
		cfg := stored.Clone()
		m.current.Store(&cfg)
		return m, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("market_config: load: %w", err)
	}

	cfg := initial.Clone()
	if err := ValidateMarketConfiguration(cfg); err != nil {
		return nil, fmt.Errorf("market_config: %w", err)
	}
	cfg.Version = 1
	cfg.UpdatedAt = clock.Now().UTC()
	if err := store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("market_config: save initial: %w", err)
	}
	m.current.Store(&cfg)
	return m, nil
}

// ValidateMarketConfiguration checks the invariants every configuration
// must hold.
func ValidateMarketConfiguration(cfg domain.MarketConfiguration) error {
	if cfg.StakingAddress == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Staking address must be set")
	}
	if cfg.MultisigAddress == (common.Address{}) {
		return domain.WithReason(domain.ErrInvalidInput, "Multisig address must be set")
	}
	for _, bps := range []uint16{cfg.PrimaryFeeBps, cfg.SecondaryFeeBps, cfg.MaxRoyaltyBps, cfg.OutBidBps} {
		if !domain.ValidBps(uint64(bps)) {
			return domain.ErrInvalidPercent
		}
	}
	if cfg.VipStakerAmount == nil || cfg.VipStakerAmount.Sign() < 0 {
		return domain.WithReason(domain.ErrInvalidInput, "VIP staker amount must be non-negative")
	}
	if cfg.DefaultTicketer != domain.TicketerLots && cfg.DefaultTicketer != domain.TicketerItems {
		return domain.WithReason(domain.ErrInvalidInput, "Default ticketer must be lots or items")
	}
	return nil
}

// Snapshot returns a copy of the current configuration.
func (m *MarketConfig) Snapshot() domain.MarketConfiguration {
	return m.current.Load().Clone()
}

// Update applies patch atomically. Only admins may change the configuration.
func (m *MarketConfig) Update(ctx context.Context, caller domain.Caller, patch MarketConfigPatch) (domain.MarketConfiguration, error) {
	if err := m.access.require(caller, domain.RoleAdmin); err != nil {
		return domain.MarketConfiguration{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	before := m.Snapshot()
	next, changed, err := applyPatch(before, patch)
	if err != nil {
		return domain.MarketConfiguration{}, err
	}
	if len(changed) == 0 {
		return before, nil
	}
	next.Version = before.Version + 1
	next.UpdatedAt = m.clock.Now().UTC()

	if err := m.store.Save(ctx, next); err != nil {
		return domain.MarketConfiguration{}, fmt.Errorf("market_config: save: %w", err)
	}
	stored := next.Clone()
	m.current.Store(&stored)

	detail := map[string]any{
		"by":      addr(caller.Sender),
		"version": next.Version,
		"changed": changed,
	}
	m.emitter.Audit(ctx, "market_config_changed", detail)
	m.emitter.Emit(ctx, event(domain.EventMarketConfigChanged, 0, detail))
	m.logger.InfoContext(ctx, "market_config: updated",
		slog.Uint64("version", next.Version),
		slog.Any("changed", changed),
	)
	return next, nil
}

func applyPatch(cfg domain.MarketConfiguration, p MarketConfigPatch) (domain.MarketConfiguration, []string, error) {
	var changed []string
	setBps := func(name string, in *uint64, dst *uint16) error {
		if in == nil {
			return nil
		}
		if !domain.ValidBps(*in) {
			return domain.ErrInvalidPercent
		}
		*dst = uint16(*in)
		changed = append(changed, name)
		return nil
	}

	if p.StakingAddress != nil {
		if *p.StakingAddress == (common.Address{}) {
			return cfg, nil, domain.WithReason(domain.ErrInvalidInput, "Staking address must be set")
		}
		cfg.StakingAddress = *p.StakingAddress
		changed = append(changed, "staking_address")
	}
	if p.MultisigAddress != nil {
		if *p.MultisigAddress == (common.Address{}) {
			return cfg, nil, domain.WithReason(domain.ErrInvalidInput, "Multisig address must be set")
		}
		cfg.MultisigAddress = *p.MultisigAddress
		changed = append(changed, "multisig_address")
	}
	if p.VipStakerAmount != nil {
		if p.VipStakerAmount.Sign() < 0 {
			return cfg, nil, domain.WithReason(domain.ErrInvalidInput, "VIP staker amount must be non-negative")
		}
		cfg.VipStakerAmount = new(big.Int).Set(p.VipStakerAmount)
		changed = append(changed, "vip_staker_amount")
	}
	for _, f := range []struct {
		name string
		in   *uint64
		dst  *uint16
	}{
		{"primary_fee_bps", p.PrimaryFeeBps, &cfg.PrimaryFeeBps},
		{"secondary_fee_bps", p.SecondaryFeeBps, &cfg.SecondaryFeeBps},
		{"max_royalty_bps", p.MaxRoyaltyBps, &cfg.MaxRoyaltyBps},
		{"outbid_bps", p.OutBidBps, &cfg.OutBidBps},
	} {
		if err := setBps(f.name, f.in, f.dst); err != nil {
			return cfg, nil, err
		}
	}
	if p.DefaultTicketer != nil {
		t := *p.DefaultTicketer
		if t != domain.TicketerLots && t != domain.TicketerItems {
			return cfg, nil, domain.WithReason(domain.ErrInvalidInput, "Default ticketer must be lots or items")
		}
		cfg.DefaultTicketer = t
		changed = append(changed, "default_ticketer")
	}
	if p.AllowExternalTokensOnSecondary != nil {
		cfg.AllowExternalTokensOnSecondary = *p.AllowExternalTokensOnSecondary
		changed = append(changed, "allow_external_tokens_on_secondary")
	}
	return cfg, changed, nil
}

func (m *MarketConfig) SetStakingAddress(ctx context.Context, caller domain.Caller, a common.Address) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{StakingAddress: &a})
	return err
}

func (m *MarketConfig) SetMultisigAddress(ctx context.Context, caller domain.Caller, a common.Address) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{MultisigAddress: &a})
	return err
}

func (m *MarketConfig) SetVipStakerAmount(ctx context.Context, caller domain.Caller, amount *big.Int) error {
	if amount == nil {
		return domain.ErrInvalidInput
	}
	_, err := m.Update(ctx, caller, MarketConfigPatch{VipStakerAmount: amount})
	return err
}

func (m *MarketConfig) SetPrimaryFeePercentage(ctx context.Context, caller domain.Caller, bps uint64) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{PrimaryFeeBps: &bps})
	return err
}

func (m *MarketConfig) SetSecondaryFeePercentage(ctx context.Context, caller domain.Caller, bps uint64) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{SecondaryFeeBps: &bps})
	return err
}

func (m *MarketConfig) SetMaxRoyaltyPercentage(ctx context.Context, caller domain.Caller, bps uint64) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{MaxRoyaltyBps: &bps})
	return err
}

func (m *MarketConfig) SetOutBidPercentage(ctx context.Context, caller domain.Caller, bps uint64) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{OutBidBps: &bps})
	return err
}

func (m *MarketConfig) SetDefaultTicketerType(ctx context.Context, caller domain.Caller, t domain.TicketerType) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{DefaultTicketer: &t})
	return err
}

func (m *MarketConfig) SetAllowExternalTokensOnSecondary(ctx context.Context, caller domain.Caller, allow bool) error {
	_, err := m.Update(ctx, caller, MarketConfigPatch{AllowExternalTokensOnSecondary: &allow})
	return err
}
