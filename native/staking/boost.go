package staking

import "math/big"

// accrue adds the boost earned by the open segment up to now. Nothing accrues
// below the threshold or for timestamps that precede the segment start.
func (u *UserBoost) accrue(now int64, threshold uint16) {
	seg := &u.New
	if seg.AccruedExtra == nil {
		seg.AccruedExtra = big.NewInt(0)
	}
	if seg.ActiveCount < threshold || seg.RateSum == nil || seg.RateSum.Sign() <= 0 {
		return
	}
	if now <= seg.SegmentStart {
		return
	}
	earned := new(big.Int).Mul(seg.RateSum, big.NewInt(now-seg.SegmentStart))
	seg.AccruedExtra = new(big.Int).Add(seg.AccruedExtra, earned)
}

// OnCountChange closes the open segment at now, folds it into the settled
// segment and opens a fresh one with the new count and rate.
func (u *UserBoost) OnCountChange(now int64, count uint16, rate *big.Int, threshold uint16) {
	u.accrue(now, threshold)
	start := now
	if u.New.SegmentStart > start {
		start = u.New.SegmentStart
	}
	settled := newBigInt(u.Old.AccruedExtra)
	settled.Add(settled, newBigInt(u.New.AccruedExtra))
	u.Old = BoostSegment{
		ActiveCount:  u.New.ActiveCount,
		RateSum:      newBigInt(u.New.RateSum),
		SegmentStart: u.New.SegmentStart,
		AccruedExtra: settled,
	}
	u.New = BoostSegment{
		ActiveCount:  count,
		RateSum:      newBigInt(rate),
		SegmentStart: start,
		AccruedExtra: big.NewInt(0),
	}
}

// Flush settles everything accrued up to now and returns it as the payout.
// The count and rate carry over into the reopened segment.
func (u *UserBoost) Flush(now int64, threshold uint16) *big.Int {
	u.OnCountChange(now, u.New.ActiveCount, u.New.RateSum, threshold)
	payout := newBigInt(u.Old.AccruedExtra)
	payout.Add(payout, newBigInt(u.New.AccruedExtra))
	u.Old.AccruedExtra = big.NewInt(0)
	u.New.AccruedExtra = big.NewInt(0)
	return payout
}

// Pending reports what Flush(now) would pay without mutating the accumulator.
func (u *UserBoost) Pending(now int64, threshold uint16) *big.Int {
	return u.Clone().Flush(now, threshold)
}

// Rate returns the boost earned per second at the current count, zero when
// the count is below the threshold.
func (u *UserBoost) Rate(threshold uint16) *big.Int {
	if u.New.ActiveCount < threshold {
		return big.NewInt(0)
	}
	return newBigInt(u.New.RateSum)
}

// adjust applies a count change of delta items contributing rate each.
func (u *UserBoost) adjust(now int64, delta int, rate *big.Int, threshold uint16) {
	count := int(u.New.ActiveCount) + delta
	if count < 0 {
		count = 0
	}
	sum := newBigInt(u.New.RateSum)
	sum.Add(sum, new(big.Int).Mul(newBigInt(rate), big.NewInt(int64(delta))))
	if sum.Sign() < 0 || count == 0 {
		sum = big.NewInt(0)
	}
	u.OnCountChange(now, uint16(count), sum, threshold)
}
