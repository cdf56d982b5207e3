package config

// Master describes the deployed staking master and its collaborators.
// Addresses are bech32 strings; amounts are base-10 strings.
type Master struct {
	Address        string `toml:"Address"`
	Admin          string `toml:"Admin"`
	TokenMinter    string `toml:"TokenMinter"`
	TokenWallet    string `toml:"TokenWallet"`
	HelperTemplate string `toml:"HelperTemplate"`
	ValidUntil     int64  `toml:"ValidUntil"`
	Reserve        string `toml:"Reserve"`
}

// Params mirrors staking.Params in file form.
type Params struct {
	BoostThreshold uint16 `toml:"BoostThreshold"`
	BoostScope     string `toml:"BoostScope"`
	BoostRarity    uint16 `toml:"BoostRarity"`
	StakeFee       string `toml:"StakeFee"`
	MinClaimFee    string `toml:"MinClaimFee"`
}

// Rarity is one rarity table row.
type Rarity struct {
	ID           uint16 `toml:"ID"`
	CommonReward string `toml:"CommonReward"`
	BoostReward  string `toml:"BoostReward"`
}

// Item assigns a rarity to a catalog item.
type Item struct {
	Address string `toml:"Address"`
	Rarity  uint16 `toml:"Rarity"`
}

// Account seeds balances and owned items.
type Account struct {
	Address string   `toml:"Address"`
	Native  string   `toml:"Native,omitempty"`
	Tokens  string   `toml:"Tokens,omitempty"`
	Items   []string `toml:"Items,omitempty"`
}
