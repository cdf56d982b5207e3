package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"nftstake/native/staking"
)

type storedConfig struct {
	Address        [20]byte
	TokenMinter    [20]byte
	TokenWallet    [20]byte
	HelperTemplate [32]byte
	Admin          [20]byte
	ValidUntil     uint64
}

type storedTreasury struct {
	Reserve       *big.Int
	FeesCollected *big.Int
}

type storedReward struct {
	CommonReward *big.Int
	BoostReward  *big.Int
}

type storedSegment struct {
	ActiveCount  uint64
	RateSum      *big.Int
	SegmentStart uint64
	AccruedExtra *big.Int
}

type storedBoost struct {
	Old storedSegment
	New storedSegment
}

type storedHelper struct {
	Item         [20]byte
	Address      [20]byte
	Status       uint64
	Staker       [20]byte
	LastStaker   [20]byte
	StakedAt     uint64
	Lock         uint64
	RarityID     uint64
	CommonReward *big.Int
	BoostReward  *big.Int
	ClaimPending bool
	Stakes       uint64
}

func clampTime(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func newStoredSegment(seg staking.BoostSegment) storedSegment {
	return storedSegment{
		ActiveCount:  uint64(seg.ActiveCount),
		RateSum:      bigOrZero(seg.RateSum),
		SegmentStart: clampTime(seg.SegmentStart),
		AccruedExtra: bigOrZero(seg.AccruedExtra),
	}
}

func (s storedSegment) toSegment() staking.BoostSegment {
	return staking.BoostSegment{
		ActiveCount:  uint16(s.ActiveCount),
		RateSum:      bigOrZero(s.RateSum),
		SegmentStart: int64(s.SegmentStart),
		AccruedExtra: bigOrZero(s.AccruedExtra),
	}
}

func newStoredHelper(h *staking.Helper) *storedHelper {
	return &storedHelper{
		Item:         h.Item,
		Address:      h.Address,
		Status:       uint64(h.Status),
		Staker:       h.Staker,
		LastStaker:   h.LastStaker,
		StakedAt:     clampTime(h.StakedAt),
		Lock:         uint64(h.Lock),
		RarityID:     uint64(h.Rarity.ID),
		CommonReward: bigOrZero(h.Rarity.CommonReward),
		BoostReward:  bigOrZero(h.Rarity.BoostReward),
		ClaimPending: h.ClaimPending,
		Stakes:       h.Stakes,
	}
}

func (s *storedHelper) toHelper() *staking.Helper {
	return &staking.Helper{
		Item:       s.Item,
		Address:    s.Address,
		Status:     staking.HelperStatus(s.Status),
		Staker:     s.Staker,
		LastStaker: s.LastStaker,
		StakedAt:   int64(s.StakedAt),
		Lock:       staking.LockOption(s.Lock),
		Rarity: staking.RaritySnapshot{
			ID:           uint16(s.RarityID),
			CommonReward: bigOrZero(s.CommonReward),
			BoostReward:  bigOrZero(s.BoostReward),
		},
		ClaimPending: s.ClaimPending,
		Stakes:       s.Stakes,
	}
}

func (tx *Tx) StakingConfigGet() (*staking.Config, bool, error) {
	var stored storedConfig
	ok, err := tx.KVGet(stakingConfigKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &staking.Config{
		Address:        stored.Address,
		TokenMinter:    stored.TokenMinter,
		TokenWallet:    stored.TokenWallet,
		HelperTemplate: stored.HelperTemplate,
		Admin:          stored.Admin,
		ValidUntil:     int64(stored.ValidUntil),
	}, true, nil
}

func (tx *Tx) StakingConfigPut(cfg *staking.Config) error {
	if cfg == nil {
		return fmt.Errorf("staking: nil config")
	}
	return tx.KVPut(stakingConfigKey, &storedConfig{
		Address:        cfg.Address,
		TokenMinter:    cfg.TokenMinter,
		TokenWallet:    cfg.TokenWallet,
		HelperTemplate: cfg.HelperTemplate,
		Admin:          cfg.Admin,
		ValidUntil:     clampTime(cfg.ValidUntil),
	})
}

func (tx *Tx) StakingTreasuryGet() (*staking.Treasury, bool, error) {
	var stored storedTreasury
	ok, err := tx.KVGet(stakingTreasuryKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &staking.Treasury{Reserve: bigOrZero(stored.Reserve), FeesCollected: bigOrZero(stored.FeesCollected)}, true, nil
}

func (tx *Tx) StakingTreasuryPut(t *staking.Treasury) error {
	if t == nil {
		return fmt.Errorf("staking: nil treasury")
	}
	return tx.KVPut(stakingTreasuryKey, &storedTreasury{Reserve: bigOrZero(t.Reserve), FeesCollected: bigOrZero(t.FeesCollected)})
}

func (tx *Tx) StakingCatalogGet(item [20]byte) (uint16, bool, error) {
	var rarity uint64
	ok, err := tx.KVGet(addrKey(stakingCatalogPrefix, item), &rarity)
	return uint16(rarity), ok, err
}

func (tx *Tx) StakingCatalogPut(item [20]byte, rarity uint16) error {
	return tx.KVPut(addrKey(stakingCatalogPrefix, item), uint64(rarity))
}

func (tx *Tx) StakingCatalogDelete(item [20]byte) error {
	return tx.KVDelete(addrKey(stakingCatalogPrefix, item))
}

func (tx *Tx) StakingCatalogList() ([]staking.CatalogEntry, error) {
	out := make([]staking.CatalogEntry, 0)
	err := tx.iterateDecoded(stakingCatalogPrefix, func(key []byte, decode func(interface{}) error) error {
		item, ok := addrSuffix(stakingCatalogPrefix, key)
		if !ok {
			return nil
		}
		var rarity uint64
		if err := decode(&rarity); err != nil {
			return err
		}
		out = append(out, staking.CatalogEntry{Item: item, Rarity: uint16(rarity)})
		return nil
	})
	return out, err
}

func (tx *Tx) StakingRarityGet(id uint16) (*staking.Reward, bool, error) {
	var stored storedReward
	ok, err := tx.KVGet(rarityKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &staking.Reward{CommonReward: bigOrZero(stored.CommonReward), BoostReward: bigOrZero(stored.BoostReward)}, true, nil
}

func (tx *Tx) StakingRarityPut(id uint16, reward *staking.Reward) error {
	if reward == nil {
		return fmt.Errorf("staking: nil reward for rarity %d", id)
	}
	return tx.KVPut(rarityKey(id), &storedReward{CommonReward: bigOrZero(reward.CommonReward), BoostReward: bigOrZero(reward.BoostReward)})
}

func (tx *Tx) StakingRarityDelete(id uint16) error {
	return tx.KVDelete(rarityKey(id))
}

func (tx *Tx) StakingRarityList() ([]staking.RarityEntry, error) {
	out := make([]staking.RarityEntry, 0)
	err := tx.iterateDecoded(stakingRarityPrefix, func(key []byte, decode func(interface{}) error) error {
		if len(key) != len(stakingRarityPrefix)+2 {
			return nil
		}
		var stored storedReward
		if err := decode(&stored); err != nil {
			return err
		}
		out = append(out, staking.RarityEntry{
			ID:     binary.BigEndian.Uint16(key[len(stakingRarityPrefix):]),
			Reward: &staking.Reward{CommonReward: bigOrZero(stored.CommonReward), BoostReward: bigOrZero(stored.BoostReward)},
		})
		return nil
	})
	return out, err
}

func (tx *Tx) StakingStakedGet(item [20]byte) ([20]byte, bool, error) {
	var staker [20]byte
	ok, err := tx.KVGet(addrKey(stakingStakedPrefix, item), &staker)
	return staker, ok, err
}

func (tx *Tx) StakingStakedPut(item [20]byte, staker [20]byte) error {
	return tx.KVPut(addrKey(stakingStakedPrefix, item), staker)
}

func (tx *Tx) StakingStakedDelete(item [20]byte) error {
	return tx.KVDelete(addrKey(stakingStakedPrefix, item))
}

func (tx *Tx) StakingStakedList() ([]staking.StakedEntry, error) {
	out := make([]staking.StakedEntry, 0)
	err := tx.iterateDecoded(stakingStakedPrefix, func(key []byte, decode func(interface{}) error) error {
		item, ok := addrSuffix(stakingStakedPrefix, key)
		if !ok {
			return nil
		}
		var staker [20]byte
		if err := decode(&staker); err != nil {
			return err
		}
		out = append(out, staking.StakedEntry{Item: item, Staker: staker})
		return nil
	})
	return out, err
}

func (tx *Tx) StakingBoostGet(user [20]byte) (*staking.UserBoost, bool, error) {
	var stored storedBoost
	ok, err := tx.KVGet(addrKey(stakingBoostPrefix, user), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &staking.UserBoost{Old: stored.Old.toSegment(), New: stored.New.toSegment()}, true, nil
}

func (tx *Tx) StakingBoostPut(user [20]byte, boost *staking.UserBoost) error {
	if boost == nil {
		return fmt.Errorf("staking: nil boost ledger")
	}
	return tx.KVPut(addrKey(stakingBoostPrefix, user), &storedBoost{Old: newStoredSegment(boost.Old), New: newStoredSegment(boost.New)})
}

func (tx *Tx) StakingBoostList() ([]staking.BoostEntry, error) {
	out := make([]staking.BoostEntry, 0)
	err := tx.iterateDecoded(stakingBoostPrefix, func(key []byte, decode func(interface{}) error) error {
		user, ok := addrSuffix(stakingBoostPrefix, key)
		if !ok {
			return nil
		}
		var stored storedBoost
		if err := decode(&stored); err != nil {
			return err
		}
		out = append(out, staking.BoostEntry{User: user, Boost: &staking.UserBoost{Old: stored.Old.toSegment(), New: stored.New.toSegment()}})
		return nil
	})
	return out, err
}

func (tx *Tx) StakingHelperIndexGet(helper [20]byte) ([20]byte, bool, error) {
	var item [20]byte
	ok, err := tx.KVGet(addrKey(stakingHelperIndexPrefix, helper), &item)
	return item, ok, err
}

func (tx *Tx) StakingHelperIndexPut(helper [20]byte, item [20]byte) error {
	return tx.KVPut(addrKey(stakingHelperIndexPrefix, helper), item)
}

func (tx *Tx) StakingHelperGet(item [20]byte) (*staking.Helper, bool, error) {
	var stored storedHelper
	ok, err := tx.KVGet(addrKey(stakingHelperPrefix, item), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toHelper(), true, nil
}

func (tx *Tx) StakingHelperPut(h *staking.Helper) error {
	if h == nil {
		return fmt.Errorf("staking: nil helper")
	}
	return tx.KVPut(addrKey(stakingHelperPrefix, h.Item), newStoredHelper(h))
}

func (tx *Tx) iterateDecoded(prefix []byte, fn func(key []byte, decode func(interface{}) error) error) error {
	return tx.iterate(prefix, func(key, value []byte) error {
		return fn(key, func(out interface{}) error { return decodeValue(key, value, out) })
	})
}

var (
	_ staking.QueryState = (*Tx)(nil)
)
