package state

import "encoding/binary"

var (
	stakingConfigKey   = []byte("staking/config")
	stakingTreasuryKey = []byte("staking/treasury")

	stakingCatalogPrefix     = []byte("staking/catalog/")
	stakingRarityPrefix      = []byte("staking/rarity/")
	stakingStakedPrefix      = []byte("staking/staked/")
	stakingBoostPrefix       = []byte("staking/boost/")
	stakingHelperIndexPrefix = []byte("staking/helper-index/")
	stakingHelperPrefix      = []byte("staking/helper/")

	nftOwnerPrefix     = []byte("nft/owner/")
	bankTokenPrefix    = []byte("bank/token/")
	bankNativePrefix   = []byte("bank/native/")
	bankTokenSupplyKey = []byte("bank/token-supply")
)

func prefixed(prefix []byte, suffix []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(suffix))
	out = append(out, prefix...)
	return append(out, suffix...)
}

func addrKey(prefix []byte, addr [20]byte) []byte { return prefixed(prefix, addr[:]) }

func rarityKey(id uint16) []byte {
	return prefixed(stakingRarityPrefix, binary.BigEndian.AppendUint16(nil, id))
}

func addrSuffix(prefix, key []byte) ([20]byte, bool) {
	var out [20]byte
	if len(key) != len(prefix)+len(out) {
		return out, false
	}
	copy(out[:], key[len(prefix):])
	return out, true
}
