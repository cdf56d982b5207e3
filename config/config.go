package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"nftstake/crypto"
	"nftstake/native/staking"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir           string    `toml:"DataDir"`
	Environment       string    `toml:"Environment"`
	AdminKeystorePath string    `toml:"AdminKeystorePath"`
	Master            Master    `toml:"master"`
	Params            Params    `toml:"params"`
	Rarities          []Rarity  `toml:"rarity"`
	Items             []Item    `toml:"items"`
	Accounts          []Account `toml:"accounts"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated default.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stake-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.Params.BoostScope) == "" {
		cfg.Params.BoostScope = staking.BoostScopeAll.String()
	}
	if cfg.Params.BoostThreshold == 0 {
		cfg.Params.BoostThreshold = staking.DefaultBoostThreshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "admin.keystore")
}

// createDefault generates an admin key, derives the collaborator addresses from
// it and saves a configuration with one sample rarity.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	admin := key.Address()
	base := admin.Raw()
	template := crypto.DeriveAddress("helper-template", base)
	account := func(label string) string {
		return crypto.FromRaw(crypto.AccountPrefix, crypto.DeriveAddress(label, base)).String()
	}

	cfg := &Config{
		DataDir:           "./stake-data",
		Environment:       "local",
		AdminKeystorePath: keystorePath,
		Master: Master{
			Address:        account("master"),
			Admin:          admin.String(),
			TokenMinter:    account("token-minter"),
			TokenWallet:    account("token-wallet"),
			HelperTemplate: hex.EncodeToString(append(template[:], base[:12]...)),
			Reserve:        "0",
		},
		Params: Params{
			BoostThreshold: staking.DefaultBoostThreshold,
			BoostScope:     staking.BoostScopeAll.String(),
			StakeFee:       staking.DefaultStakeFee.String(),
			MinClaimFee:    staking.DefaultMinClaimFee.String(),
		},
		Rarities: []Rarity{{ID: 1, CommonReward: "1000000000", BoostReward: "10"}},
		Items:    []Item{},
		Accounts: []Account{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path in TOML form.
func Save(path string, cfg *Config) error {
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
