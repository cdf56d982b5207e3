package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nftstake/crypto"
	"nftstake/native/staking"
)

func testAccount(b byte) string {
	var raw [20]byte
	raw[0] = b
	return crypto.FromRaw(crypto.AccountPrefix, raw).String()
}

func testItem(b byte) string {
	var raw [20]byte
	raw[19] = b
	return crypto.FromRaw(crypto.ItemPrefix, raw).String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func validBody() string {
	return fmt.Sprintf(`DataDir = "./data"
Environment = "test"

[master]
Address = %q
Admin = %q
TokenMinter = %q
TokenWallet = %q
HelperTemplate = "%064x"
ValidUntil = 1800000000
Reserve = "1000"

[params]
BoostThreshold = 2
BoostScope = "rarity"
BoostRarity = 4
StakeFee = "5"
MinClaimFee = "7"

[[rarity]]
ID = 4
CommonReward = "100"
BoostReward = "3"

[[items]]
Address = %q
Rarity = 4

[[accounts]]
Address = %q
Native = "9"
Items = [%q]
`, testAccount(0xA0), testAccount(0xAD), testAccount(0xB1), testAccount(0xB0), 1,
		testItem(1), testAccount(0x01), testItem(1))
}

func TestLoadParsesGenesisAndParams(t *testing.T) {
	cfg, err := Load(writeConfig(t, validBody()))
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)

	params, err := cfg.StakingParams()
	require.NoError(t, err)
	require.Equal(t, uint16(2), params.BoostThreshold)
	require.Equal(t, staking.BoostScopeRarity, params.BoostScope)
	require.Equal(t, uint16(4), params.BoostRarity)
	require.Zero(t, params.StakeFee.Cmp(big.NewInt(5)))
	require.Zero(t, params.MinClaimFee.Cmp(big.NewInt(7)))

	g, err := cfg.Genesis()
	require.NoError(t, err)
	require.Equal(t, byte(0xA0), g.Config.Address[0])
	require.Equal(t, byte(0xAD), g.Config.Admin[0])
	require.Equal(t, int64(1_800_000_000), g.Config.ValidUntil)
	require.Equal(t, byte(1), g.Config.HelperTemplate[31])
	require.Zero(t, g.Reserve.Cmp(big.NewInt(1000)))
	require.Len(t, g.Rarities, 1)
	require.Zero(t, g.Rarities[0].Reward.CommonReward.Cmp(big.NewInt(100)))
	require.Len(t, g.Items, 1)
	require.Equal(t, uint16(4), g.Items[0].Rarity)
	require.Len(t, g.Accounts, 1)
	require.Zero(t, g.Accounts[0].Native.Cmp(big.NewInt(9)))
	require.Equal(t, g.Items[0].Item, g.Accounts[0].Items[0])
}

func TestLoadAppliesDefaults(t *testing.T) {
	body := fmt.Sprintf(`[master]
Address = %q
Admin = %q
TokenMinter = %q
TokenWallet = %q
HelperTemplate = "%064x"
`, testAccount(0xA0), testAccount(0xAD), testAccount(0xB1), testAccount(0xB0), 2)
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Equal(t, "./stake-data", cfg.DataDir)
	require.Equal(t, "local", cfg.Environment)

	params, err := cfg.StakingParams()
	require.NoError(t, err)
	require.Equal(t, staking.DefaultParams(), params)
}

func TestLoadRejectsBadValues(t *testing.T) {
	base := validBody()
	cases := map[string]string{
		"item prefix for admin": strings.Replace(base, testAccount(0xAD), testItem(0xAD), 1),
		"negative fee":          strings.Replace(base, `StakeFee = "5"`, `StakeFee = "-5"`, 1),
		"unknown scope":         strings.Replace(base, `BoostScope = "rarity"`, `BoostScope = "odd"`, 1),
		"short template":        strings.Replace(base, fmt.Sprintf("%064x", 1), "abcd", 1),
		"unknown rarity":        strings.Replace(base, "\nRarity = 4", "\nRarity = 9", 1),
		"bad reward":            strings.Replace(base, `CommonReward = "100"`, `CommonReward = "1e3"`, 1),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.FileExists(t, cfg.AdminKeystorePath)

	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.Address().String(), cfg.Master.Admin)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Master, reloaded.Master)

	g, err := reloaded.Genesis()
	require.NoError(t, err)
	require.NotEqual(t, g.Config.Address, g.Config.TokenWallet)
	require.Len(t, g.Rarities, 1)
}
