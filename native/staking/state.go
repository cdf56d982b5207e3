package staking

import "math/big"

// MasterState is the persistence surface owned by the master.
type MasterState interface {
	StakingConfigGet() (*Config, bool, error)
	StakingConfigPut(cfg *Config) error
	StakingTreasuryGet() (*Treasury, bool, error)
	StakingTreasuryPut(t *Treasury) error

	StakingCatalogGet(item [20]byte) (uint16, bool, error)
	StakingCatalogPut(item [20]byte, rarity uint16) error
	StakingCatalogDelete(item [20]byte) error
	StakingCatalogList() ([]CatalogEntry, error)

	StakingRarityGet(id uint16) (*Reward, bool, error)
	StakingRarityPut(id uint16, reward *Reward) error
	StakingRarityDelete(id uint16) error
	StakingRarityList() ([]RarityEntry, error)

	StakingStakedGet(item [20]byte) ([20]byte, bool, error)
	StakingStakedPut(item [20]byte, staker [20]byte) error
	StakingStakedDelete(item [20]byte) error
	StakingStakedList() ([]StakedEntry, error)

	StakingBoostGet(user [20]byte) (*UserBoost, bool, error)
	StakingBoostPut(user [20]byte, boost *UserBoost) error
	StakingBoostList() ([]BoostEntry, error)

	// Helper arena index: helper address -> item.
	StakingHelperIndexGet(helper [20]byte) ([20]byte, bool, error)
	StakingHelperIndexPut(helper [20]byte, item [20]byte) error

	// NFT custody, read to confirm a stake notification.
	NFTOwnerGet(item [20]byte) ([20]byte, bool, error)
}

// HelperState is the persistence surface of one helper.
type HelperState interface {
	StakingHelperGet(item [20]byte) (*Helper, bool, error)
	StakingHelperPut(helper *Helper) error
}

// QueryState combines both surfaces for read-only queries.
type QueryState interface {
	MasterState
	HelperState
}

func loadConfig(st MasterState) (*Config, error) {
	cfg, ok, err := st.StakingConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, errConfigMissing
	}
	return cfg, nil
}

func loadTreasury(st MasterState) (*Treasury, error) {
	t, ok, err := st.StakingTreasuryGet()
	if err != nil {
		return nil, err
	}
	if !ok || t == nil {
		return newTreasury(), nil
	}
	if t.Reserve == nil {
		t.Reserve = big.NewInt(0)
	}
	if t.FeesCollected == nil {
		t.FeesCollected = big.NewInt(0)
	}
	return t, nil
}

func loadBoost(st MasterState, user [20]byte) (*UserBoost, error) {
	ub, ok, err := st.StakingBoostGet(user)
	if err != nil {
		return nil, err
	}
	if !ok || ub == nil {
		return NewUserBoost(), nil
	}
	return ub, nil
}
