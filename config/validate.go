package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"nftstake/core"
	"nftstake/crypto"
	"nftstake/native/staking"
)

// Validate parses every field once so that Genesis and StakingParams cannot
// fail on a loaded configuration.
func (c *Config) Validate() error {
	if _, err := c.StakingParams(); err != nil {
		return err
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	return nil
}

// StakingParams converts the params table.
func (c *Config) StakingParams() (staking.Params, error) {
	params := staking.DefaultParams()
	scope, err := staking.ParseBoostScope(strings.TrimSpace(c.Params.BoostScope))
	if err != nil {
		return params, err
	}
	params.BoostScope = scope
	params.BoostRarity = c.Params.BoostRarity
	if c.Params.BoostThreshold != 0 {
		params.BoostThreshold = c.Params.BoostThreshold
	}
	if c.Params.StakeFee != "" {
		if params.StakeFee, err = parseUintAmount(c.Params.StakeFee); err != nil {
			return params, fmt.Errorf("invalid params.StakeFee: %w", err)
		}
	}
	if c.Params.MinClaimFee != "" {
		if params.MinClaimFee, err = parseUintAmount(c.Params.MinClaimFee); err != nil {
			return params, fmt.Errorf("invalid params.MinClaimFee: %w", err)
		}
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// Genesis converts the master, rarity, items and accounts tables.
func (c *Config) Genesis() (*core.Genesis, error) {
	g := &core.Genesis{}
	var err error
	m := c.Master
	if g.Config.Address, err = parseAccount("master.Address", m.Address); err != nil {
		return nil, err
	}
	if g.Config.Admin, err = parseAccount("master.Admin", m.Admin); err != nil {
		return nil, err
	}
	if g.Config.TokenMinter, err = parseAccount("master.TokenMinter", m.TokenMinter); err != nil {
		return nil, err
	}
	if g.Config.TokenWallet, err = parseAccount("master.TokenWallet", m.TokenWallet); err != nil {
		return nil, err
	}
	if g.Config.HelperTemplate, err = parseTemplate(m.HelperTemplate); err != nil {
		return nil, err
	}
	if m.ValidUntil < 0 {
		return nil, fmt.Errorf("invalid master.ValidUntil: negative")
	}
	g.Config.ValidUntil = m.ValidUntil
	if strings.TrimSpace(m.Reserve) != "" {
		if g.Reserve, err = parseUintAmount(m.Reserve); err != nil {
			return nil, fmt.Errorf("invalid master.Reserve: %w", err)
		}
	}

	for i, r := range c.Rarities {
		common, err := parseUintAmount(r.CommonReward)
		if err != nil {
			return nil, fmt.Errorf("invalid rarity[%d].CommonReward: %w", i, err)
		}
		boost, err := parseUintAmount(r.BoostReward)
		if err != nil {
			return nil, fmt.Errorf("invalid rarity[%d].BoostReward: %w", i, err)
		}
		g.Rarities = append(g.Rarities, staking.RarityEntry{
			ID:     r.ID,
			Reward: &staking.Reward{CommonReward: common, BoostReward: boost},
		})
	}
	for i, item := range c.Items {
		addr, err := parseAny(fmt.Sprintf("items[%d].Address", i), item.Address)
		if err != nil {
			return nil, err
		}
		g.Items = append(g.Items, staking.CatalogEntry{Item: addr, Rarity: item.Rarity})
	}
	for i, acct := range c.Accounts {
		field := fmt.Sprintf("accounts[%d]", i)
		addr, err := parseAccount(field+".Address", acct.Address)
		if err != nil {
			return nil, err
		}
		ga := core.GenesisAccount{Address: addr}
		if acct.Native != "" {
			if ga.Native, err = parseUintAmount(acct.Native); err != nil {
				return nil, fmt.Errorf("invalid %s.Native: %w", field, err)
			}
		}
		if acct.Tokens != "" {
			if ga.Tokens, err = parseUintAmount(acct.Tokens); err != nil {
				return nil, fmt.Errorf("invalid %s.Tokens: %w", field, err)
			}
		}
		for j, raw := range acct.Items {
			item, err := parseAny(fmt.Sprintf("%s.Items[%d]", field, j), raw)
			if err != nil {
				return nil, err
			}
			ga.Items = append(ga.Items, item)
		}
		g.Accounts = append(g.Accounts, ga)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func parseAccount(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAny(field, value string) ([20]byte, error) {
	raw, err := crypto.ParseRaw(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return raw, nil
}

func parseTemplate(value string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return out, fmt.Errorf("invalid master.HelperTemplate: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("invalid master.HelperTemplate: want %d bytes, got %d", len(out), len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return amount, nil
}
