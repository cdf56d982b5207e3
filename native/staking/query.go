package staking

import (
	"math/big"
)

// Snapshot is the full read-only view of the master.
type Snapshot struct {
	Items       []CatalogEntry `json:"items"`
	Rarity      []RarityEntry  `json:"rarity"`
	Users       []BoostEntry   `json:"users"`
	StakedItems []StakedEntry  `json:"stakedItems"`
	Config      *Config        `json:"config"`
	Treasury    *Treasury      `json:"treasury"`
}

// Estimate breaks a projected payout into its components.
type Estimate struct {
	Item    [20]byte `json:"item"`
	Staked  bool     `json:"staked"`
	Periods int64    `json:"periods"`
	Common  *big.Int `json:"common"`
	Boost   *big.Int `json:"boost"`
	Total   *big.Int `json:"total"`
}

// Genesis seeds a fresh master state. Existing entries are overwritten.
func Genesis(st MasterState, cfg *Config, items []CatalogEntry, rarities []RarityEntry) error {
	if st == nil {
		return errNilState
	}
	if cfg == nil {
		return errConfigMissing
	}
	if err := st.StakingConfigPut(cfg); err != nil {
		return err
	}
	if _, ok, err := st.StakingTreasuryGet(); err != nil {
		return err
	} else if !ok {
		if err := st.StakingTreasuryPut(newTreasury()); err != nil {
			return err
		}
	}
	for _, entry := range items {
		if err := st.StakingCatalogPut(entry.Item, entry.Rarity); err != nil {
			return err
		}
	}
	for _, entry := range rarities {
		if entry.Reward == nil {
			continue
		}
		if err := st.StakingRarityPut(entry.ID, entry.Reward.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// HelperAddressOf returns the deterministic helper address of item.
func HelperAddressOf(st MasterState, item [20]byte) ([20]byte, error) {
	cfg, err := loadConfig(st)
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.HelperAddressOf(item), nil
}

// ContractSnapshot returns every dictionary together with config and treasury.
func ContractSnapshot(st MasterState) (*Snapshot, error) {
	cfg, err := loadConfig(st)
	if err != nil {
		return nil, err
	}
	treasury, err := loadTreasury(st)
	if err != nil {
		return nil, err
	}
	items, err := st.StakingCatalogList()
	if err != nil {
		return nil, err
	}
	rarity, err := st.StakingRarityList()
	if err != nil {
		return nil, err
	}
	users, err := st.StakingBoostList()
	if err != nil {
		return nil, err
	}
	staked, err := st.StakingStakedList()
	if err != nil {
		return nil, err
	}
	cfgCopy := *cfg
	return &Snapshot{
		Items:       items,
		Rarity:      rarity,
		Users:       users,
		StakedItems: staked,
		Config:      &cfgCopy,
		Treasury:    treasury.Clone(),
	}, nil
}

// ItemsStakedBy lists the items currently staked by user in key order.
func ItemsStakedBy(st MasterState, user [20]byte) ([][20]byte, error) {
	staked, err := st.StakingStakedList()
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0)
	for _, entry := range staked {
		if entry.Staker == user {
			out = append(out, entry.Item)
		}
	}
	return out, nil
}

// HelperRecord returns the helper record of item, or an idle placeholder
// when the item was never staked.
func HelperRecord(st QueryState, item [20]byte) (*Helper, error) {
	cfg, err := loadConfig(st)
	if err != nil {
		return nil, err
	}
	h, ok, err := st.StakingHelperGet(item)
	if err != nil {
		return nil, err
	}
	if !ok || h == nil {
		return &Helper{Item: item, Address: cfg.HelperAddressOf(item), Status: HelperIdle}, nil
	}
	return h.Clone(), nil
}

// EstimatedReward projects the payout of a claim made elapsed seconds after
// the item's current stakedAt, without mutating state. For staked items the
// helper's snapshot and lock apply and the staker's boost is projected at its
// current rate; for catalog items that are not staked the shortest lock and
// the current rarity table apply and no boost is included.
func (m *Master) EstimatedReward(st QueryState, item [20]byte, elapsed int64, now int64) (*Estimate, error) {
	if m == nil || st == nil {
		return nil, errNilState
	}
	if elapsed < 0 {
		elapsed = 0
	}
	est := &Estimate{Item: item, Common: big.NewInt(0), Boost: big.NewInt(0), Total: big.NewInt(0)}
	staker, staked, err := st.StakingStakedGet(item)
	if err != nil {
		return nil, err
	}
	if staked {
		h, ok, err := st.StakingHelperGet(item)
		if err != nil {
			return nil, err
		}
		if ok && h != nil && h.Status == HelperStaked {
			est.Staked = true
			est.Periods = elapsed / h.Lock.Period()
			est.Common = new(big.Int).Mul(newBigInt(h.Rarity.CommonReward), big.NewInt(est.Periods))
			ub, err := loadBoost(st, staker)
			if err != nil {
				return nil, err
			}
			boost := ub.Pending(now, m.params.BoostThreshold)
			projected := new(big.Int).Mul(ub.Rate(m.params.BoostThreshold), big.NewInt(h.StakedAt+elapsed-maxInt64(now, h.StakedAt)))
			if projected.Sign() > 0 {
				boost.Add(boost, projected)
			}
			est.Boost = boost
			est.Total = new(big.Int).Add(est.Common, est.Boost)
			return est, nil
		}
	}
	rarityID, ok, err := st.StakingCatalogGet(item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrItemNotFound
	}
	reward, ok, err := st.StakingRarityGet(rarityID)
	if err != nil {
		return nil, err
	}
	if ok && reward != nil {
		est.Periods = elapsed / Lock7Days.Period()
		est.Common = new(big.Int).Mul(newBigInt(reward.CommonReward), big.NewInt(est.Periods))
		est.Total = new(big.Int).Set(est.Common)
	}
	return est, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
