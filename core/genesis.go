package core

import (
	"fmt"
	"math/big"

	"nftstake/core/state"
	"nftstake/native/bank"
	"nftstake/native/staking"
)

// GenesisAccount seeds balances and items for one account.
type GenesisAccount struct {
	Address [20]byte
	Native  *big.Int
	Tokens  *big.Int
	Items   [][20]byte
}

// Genesis is the initial state installed into an empty database.
type Genesis struct {
	Config   staking.Config
	Items    []staking.CatalogEntry
	Rarities []staking.RarityEntry
	// Reserve is minted to the token wallet and credited to the master.
	Reserve  *big.Int
	Accounts []GenesisAccount
}

// Validate checks the genesis for obvious misconfiguration.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis: missing")
	}
	var zero [20]byte
	if g.Config.Address == zero {
		return fmt.Errorf("genesis: master address required")
	}
	if g.Config.Admin == zero {
		return fmt.Errorf("genesis: admin address required")
	}
	if g.Config.TokenWallet == zero || g.Config.TokenMinter == zero {
		return fmt.Errorf("genesis: token wallet and minter required")
	}
	known := make(map[uint16]struct{}, len(g.Rarities))
	for _, r := range g.Rarities {
		if r.Reward == nil {
			return fmt.Errorf("genesis: rarity %d has no reward", r.ID)
		}
		known[r.ID] = struct{}{}
	}
	for _, item := range g.Items {
		if _, ok := known[item.Rarity]; !ok {
			return fmt.Errorf("genesis: item %x references unknown rarity %d", item.Item[:], item.Rarity)
		}
	}
	if g.Reserve != nil && g.Reserve.Sign() < 0 {
		return fmt.Errorf("genesis: negative reserve")
	}
	return nil
}

// InitGenesis installs g when the database holds no master configuration yet.
// It reports whether anything was written.
func (n *Node) InitGenesis(g *Genesis) (bool, error) {
	if err := g.Validate(); err != nil {
		return false, err
	}
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	installed := false
	err := n.state.Update(func(tx *state.Tx) error {
		if _, ok, err := tx.StakingConfigGet(); err != nil {
			return err
		} else if ok {
			return nil
		}
		cfg := g.Config
		if err := staking.Genesis(tx, &cfg, g.Items, g.Rarities); err != nil {
			return err
		}
		ledger := bank.NewLedger(cfg.TokenMinter)
		if g.Reserve != nil && g.Reserve.Sign() > 0 {
			if err := ledger.Mint(tx, cfg.TokenMinter, cfg.TokenWallet, g.Reserve); err != nil {
				return err
			}
			if err := tx.StakingTreasuryPut(&staking.Treasury{Reserve: new(big.Int).Set(g.Reserve), FeesCollected: big.NewInt(0)}); err != nil {
				return err
			}
		}
		for _, acct := range g.Accounts {
			if acct.Native != nil && acct.Native.Sign() > 0 {
				if err := ledger.Credit(tx, bank.AssetNative, acct.Address, acct.Native); err != nil {
					return err
				}
			}
			if acct.Tokens != nil && acct.Tokens.Sign() > 0 {
				if err := ledger.Mint(tx, cfg.TokenMinter, acct.Address, acct.Tokens); err != nil {
					return err
				}
			}
			for _, item := range acct.Items {
				if err := n.registry.Mint(tx, item, acct.Address); err != nil {
					return err
				}
			}
		}
		installed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if err := n.loadConfig(); err != nil {
		return installed, err
	}
	return installed, nil
}
