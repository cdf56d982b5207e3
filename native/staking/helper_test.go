package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nftstake/core/types"
)

func stakedHelperState(t *testing.T) (*mockState, *HelperEngine, [20]byte, [20]byte) {
	t.Helper()
	st := newMockState()
	engine := NewHelperEngine(masterAddr, testParams())
	item := itemAddr(1)
	helperAddr := addr(0xC1)
	_, err := engine.Receive(st, item, &types.Envelope{
		From: masterAddr,
		To:   helperAddr,
		Now:  t0,
		Body: &StakeCommand{Staker: alice, StakedAt: t0, Lock: Lock7Days, Rarity: RaritySnapshot{ID: 1, CommonReward: big.NewInt(unit), BoostReward: big.NewInt(0)}},
	})
	require.NoError(t, err)
	return st, engine, item, helperAddr
}

func TestHelperStakeOnlyFromMaster(t *testing.T) {
	st := newMockState()
	engine := NewHelperEngine(masterAddr, testParams())
	_, err := engine.Receive(st, itemAddr(1), &types.Envelope{
		From: bob,
		To:   addr(0xC1),
		Body: &StakeCommand{Staker: bob, StakedAt: t0, Lock: Lock7Days},
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, st.helpers)
}

func TestHelperRejectsDoubleStake(t *testing.T) {
	st, engine, item, helperAddr := stakedHelperState(t)
	_, err := engine.Receive(st, item, &types.Envelope{
		From: masterAddr,
		To:   helperAddr,
		Body: &StakeCommand{Staker: bob, StakedAt: t0 + 1, Lock: Lock7Days},
	})
	require.ErrorIs(t, err, ErrAlreadyStaked)
	require.Equal(t, alice, st.helpers[item].Staker)
}

func TestHelperClaimForwardsRelay(t *testing.T) {
	st, engine, item, helperAddr := stakedHelperState(t)
	out, err := engine.Receive(st, item, &types.Envelope{
		QueryID: 77,
		From:    alice,
		To:      helperAddr,
		Value:   claimFee(),
		Now:     t0 + 9*day,
		Bounce:  true,
		Body:    &Claim{ReturnItem: true},
	})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)

	relay := out.Messages[0]
	require.Equal(t, masterAddr, relay.To)
	require.Equal(t, helperAddr, relay.From)
	require.Equal(t, uint64(77), relay.QueryID)
	require.Equal(t, t0+9*day, relay.Now)
	require.True(t, relay.Bounce)
	require.Zero(t, relay.Value.Cmp(DefaultMinClaimFee))

	body, ok := relay.Body.(*ClaimRelay)
	require.True(t, ok)
	require.Equal(t, item, body.Item)
	require.Equal(t, alice, body.Staker)
	require.Equal(t, 9*day, body.Elapsed)
	require.True(t, body.ReturnItem)
	require.True(t, st.helpers[item].ClaimPending)

	_, err = engine.Receive(st, item, &types.Envelope{
		From:  alice,
		To:    helperAddr,
		Value: claimFee(),
		Now:   t0 + 9*day,
		Body:  &Claim{},
	})
	require.ErrorIs(t, err, ErrClaimPending)
}

func TestHelperSettleAdvancesStakedAt(t *testing.T) {
	st, engine, item, helperAddr := stakedHelperState(t)
	st.helpers[item].ClaimPending = true
	out, err := engine.Receive(st, item, &types.Envelope{
		From: masterAddr,
		To:   helperAddr,
		Now:  t0 + 15*day,
		Body: &ClaimReply{Advance: 14 * day, Payout: big.NewInt(2 * unit)},
	})
	require.NoError(t, err)
	require.Empty(t, out.Effects)
	require.Equal(t, t0+14*day, st.helpers[item].StakedAt)
	require.False(t, st.helpers[item].ClaimPending)
}

func TestHelperSettleReplyOnlyFromMaster(t *testing.T) {
	st, engine, item, helperAddr := stakedHelperState(t)
	_, err := engine.Receive(st, item, &types.Envelope{
		From: alice,
		To:   helperAddr,
		Body: &ClaimReply{Release: true},
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, HelperStaked, st.helpers[item].Status)
}

func TestHelperIgnoresUnrelatedBounce(t *testing.T) {
	st, engine, item, helperAddr := stakedHelperState(t)
	out, err := engine.Receive(st, item, &types.Envelope{
		From:    masterAddr,
		To:      helperAddr,
		Bounced: true,
		Body:    &ClaimReply{},
	})
	require.NoError(t, err)
	require.Empty(t, out.Effects)
}

func TestHelperUnknownOp(t *testing.T) {
	st, engine, item, helperAddr := stakedHelperState(t)
	_, err := engine.Receive(st, item, &types.Envelope{
		From: alice,
		To:   helperAddr,
		Body: &AdminWithdraw{Amount: big.NewInt(1)},
	})
	require.ErrorIs(t, err, ErrUnknownOp)
}
