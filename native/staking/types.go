package staking

import "math/big"

// SecondsPerDay converts lock options into claim periods.
const SecondsPerDay int64 = 86_400

// LockOption is the staking duration in days chosen by the staker.
type LockOption uint8

const (
	Lock7Days  LockOption = 7
	Lock14Days LockOption = 14
	Lock30Days LockOption = 30
)

// Valid reports whether the option is one of the supported durations.
func (l LockOption) Valid() bool {
	switch l {
	case Lock7Days, Lock14Days, Lock30Days:
		return true
	default:
		return false
	}
}

// Period returns the claim period in seconds.
func (l LockOption) Period() int64 { return int64(l) * SecondsPerDay }

// Reward holds the reward rates for one rarity tier.
type Reward struct {
	CommonReward *big.Int `json:"commonReward"`
	BoostReward  *big.Int `json:"boostReward"`
}

// Clone returns a deep copy of the reward.
func (r *Reward) Clone() *Reward {
	if r == nil {
		return nil
	}
	return &Reward{CommonReward: newBigInt(r.CommonReward), BoostReward: newBigInt(r.BoostReward)}
}

// RaritySnapshot freezes the rarity parameters an item was staked with.
type RaritySnapshot struct {
	ID           uint16   `json:"id"`
	CommonReward *big.Int `json:"commonReward"`
	BoostReward  *big.Int `json:"boostReward"`
}

func (s RaritySnapshot) clone() RaritySnapshot {
	return RaritySnapshot{ID: s.ID, CommonReward: newBigInt(s.CommonReward), BoostReward: newBigInt(s.BoostReward)}
}

// CatalogEntry is one stakeable item and its rarity.
type CatalogEntry struct {
	Item   [20]byte `json:"item"`
	Rarity uint16   `json:"rarity"`
}

// RarityEntry is one row of the rarity table.
type RarityEntry struct {
	ID     uint16  `json:"id"`
	Reward *Reward `json:"reward"`
}

// StakedEntry maps an item in custody to its staker.
type StakedEntry struct {
	Item   [20]byte `json:"item"`
	Staker [20]byte `json:"staker"`
}

// HelperStatus is the per-item state machine position.
type HelperStatus uint8

const (
	HelperIdle HelperStatus = iota
	HelperStaked
)

func (s HelperStatus) String() string {
	switch s {
	case HelperIdle:
		return "idle"
	case HelperStaked:
		return "staked"
	default:
		return "unknown"
	}
}

// Helper is the stake-local record of one item. It is created on the first
// stake of the item and reset, never removed, when the item is released.
type Helper struct {
	Item         [20]byte       `json:"item"`
	Address      [20]byte       `json:"address"`
	Status       HelperStatus   `json:"status"`
	Staker       [20]byte       `json:"staker"`
	LastStaker   [20]byte       `json:"lastStaker"`
	StakedAt     int64          `json:"stakedAt"`
	Lock         LockOption     `json:"lock"`
	Rarity       RaritySnapshot `json:"rarity"`
	ClaimPending bool           `json:"claimPending"`
	Stakes       uint64         `json:"stakes"`
}

// Clone returns a deep copy of the helper record.
func (h *Helper) Clone() *Helper {
	if h == nil {
		return nil
	}
	clone := *h
	clone.Rarity = h.Rarity.clone()
	return &clone
}

// UnlocksAt is the earliest timestamp a claim is accepted.
func (h *Helper) UnlocksAt() int64 { return h.StakedAt + h.Lock.Period() }

// BoostSegment is one interval of the per-user boost accumulator.
type BoostSegment struct {
	ActiveCount  uint16   `json:"activeCount"`
	RateSum      *big.Int `json:"rateSum"`
	SegmentStart int64    `json:"segmentStart"`
	AccruedExtra *big.Int `json:"accruedExtra"`
}

func (s BoostSegment) clone() BoostSegment {
	return BoostSegment{
		ActiveCount:  s.ActiveCount,
		RateSum:      newBigInt(s.RateSum),
		SegmentStart: s.SegmentStart,
		AccruedExtra: newBigInt(s.AccruedExtra),
	}
}

// UserBoost is the two-segment accumulator kept per staker. Old holds settled
// history, New the interval opened by the most recent count change.
type UserBoost struct {
	Old BoostSegment `json:"old"`
	New BoostSegment `json:"new"`
}

// NewUserBoost returns an empty accumulator.
func NewUserBoost() *UserBoost {
	return &UserBoost{
		Old: BoostSegment{RateSum: big.NewInt(0), AccruedExtra: big.NewInt(0)},
		New: BoostSegment{RateSum: big.NewInt(0), AccruedExtra: big.NewInt(0)},
	}
}

// Clone returns a deep copy of the accumulator.
func (u *UserBoost) Clone() *UserBoost {
	if u == nil {
		return nil
	}
	return &UserBoost{Old: u.Old.clone(), New: u.New.clone()}
}

// BoostEntry pairs a user with their accumulator.
type BoostEntry struct {
	User  [20]byte   `json:"user"`
	Boost *UserBoost `json:"boost"`
}

// Config is the master's global configuration.
type Config struct {
	Address        [20]byte `json:"address"`
	TokenMinter    [20]byte `json:"tokenMinter"`
	TokenWallet    [20]byte `json:"tokenWallet"`
	HelperTemplate [32]byte `json:"helperTemplate"`
	Admin          [20]byte `json:"admin"`
	ValidUntil     int64    `json:"validUntil"`
}

// Treasury tracks the reward reserve and the native fees collected.
type Treasury struct {
	Reserve       *big.Int `json:"reserve"`
	FeesCollected *big.Int `json:"feesCollected"`
}

// Clone returns a deep copy of the treasury.
func (t *Treasury) Clone() *Treasury {
	if t == nil {
		return nil
	}
	return &Treasury{Reserve: newBigInt(t.Reserve), FeesCollected: newBigInt(t.FeesCollected)}
}

func newTreasury() *Treasury {
	return &Treasury{Reserve: big.NewInt(0), FeesCollected: big.NewInt(0)}
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
