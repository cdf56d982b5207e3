package staking

import (
	"fmt"
	"math/big"
)

// BoostScope selects which staked items count towards the boost threshold.
type BoostScope uint8

const (
	// BoostScopeAll counts every staked item of the user.
	BoostScopeAll BoostScope = iota
	// BoostScopeRarity counts only items of Params.BoostRarity.
	BoostScopeRarity
)

// ParseBoostScope maps the configuration spelling to a scope.
func ParseBoostScope(s string) (BoostScope, error) {
	switch s {
	case "", "all":
		return BoostScopeAll, nil
	case "rarity":
		return BoostScopeRarity, nil
	default:
		return 0, fmt.Errorf("staking: unknown boost scope %q", s)
	}
}

func (s BoostScope) String() string {
	if s == BoostScopeRarity {
		return "rarity"
	}
	return "all"
}

const (
	DefaultBoostThreshold uint16 = 3
)

var (
	// DefaultStakeFee is retained from each stake notification; the excess is refunded.
	DefaultStakeFee = big.NewInt(50_000_000)
	// DefaultMinClaimFee is the smallest value a claim must carry.
	DefaultMinClaimFee = big.NewInt(100_000_000)
)

// Params are the tunable protocol constants.
type Params struct {
	BoostThreshold uint16
	BoostScope     BoostScope
	BoostRarity    uint16
	StakeFee       *big.Int
	MinClaimFee    *big.Int
}

// DefaultParams returns the shipped defaults.
func DefaultParams() Params {
	return Params{
		BoostThreshold: DefaultBoostThreshold,
		BoostScope:     BoostScopeAll,
		StakeFee:       new(big.Int).Set(DefaultStakeFee),
		MinClaimFee:    new(big.Int).Set(DefaultMinClaimFee),
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.StakeFee == nil || p.StakeFee.Sign() < 0 {
		return fmt.Errorf("staking: stake fee must be non-negative")
	}
	if p.MinClaimFee == nil || p.MinClaimFee.Sign() < 0 {
		return fmt.Errorf("staking: min claim fee must be non-negative")
	}
	if p.BoostScope != BoostScopeAll && p.BoostScope != BoostScopeRarity {
		return fmt.Errorf("staking: invalid boost scope %d", p.BoostScope)
	}
	return nil
}

// counts reports whether an item with the given rarity counts towards boost.
func (p Params) counts(rarity uint16) bool {
	if p.BoostScope == BoostScopeRarity {
		return rarity == p.BoostRarity
	}
	return true
}
