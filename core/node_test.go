package core

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "nftstake/core/errors"
	"nftstake/core/events"
	"nftstake/core/types"
	"nftstake/native/bank"
	"nftstake/native/staking"
	"nftstake/storage"
)

var (
	masterAddr = [20]byte{0xa0}
	adminAddr  = [20]byte{0xad}
	walletAddr = [20]byte{0xb0}
	minterAddr = [20]byte{0xb1}
	alice      = [20]byte{0x01}
	bob        = [20]byte{0x02}
	item1      = [20]byte{0xe1}
	item2      = [20]byte{0xe2}
)

const unit = 1_000_000_000

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testGenesis() *Genesis {
	return &Genesis{
		Config: staking.Config{
			Address:     masterAddr,
			TokenMinter: minterAddr,
			TokenWallet: walletAddr,
			Admin:       adminAddr,
			ValidUntil:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		},
		Items:    []staking.CatalogEntry{{Item: item1, Rarity: 1}, {Item: item2, Rarity: 1}},
		Rarities: []staking.RarityEntry{{ID: 1, Reward: &staking.Reward{CommonReward: big.NewInt(unit), BoostReward: big.NewInt(0)}}},
		Reserve:  big.NewInt(100 * unit),
		Accounts: []GenesisAccount{{
			Address: alice,
			Native:  big.NewInt(10 * unit),
			Items:   [][20]byte{item1, item2},
		}},
	}
}

func newTestNode(t *testing.T, db storage.Database) (*Node, *clock) {
	t.Helper()
	n, err := NewNode(db, staking.DefaultParams())
	require.NoError(t, err)
	n.SetMetrics(nil)
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n.SetNowFunc(c.Now)
	_, err = n.InitGenesis(testGenesis())
	require.NoError(t, err)
	return n, c
}

func balance(t *testing.T, n *Node, asset bank.Asset, addr [20]byte) string {
	t.Helper()
	bal, err := n.Balance(asset, addr)
	require.NoError(t, err)
	return bal.String()
}

func TestNodeStakeClaimRelease(t *testing.T) {
	n, c := newTestNode(t, storage.NewMemDB())
	ctx := context.Background()
	broadcaster := events.NewBroadcaster(32)
	n.SetEmitter(broadcaster)

	tr, err := n.Stake(ctx, alice, item1, staking.Lock7Days, staking.DefaultStakeFee, 1)
	require.NoError(t, err)
	require.Equal(t, coreerrors.CodeOK, tr.ExitCode())
	require.Len(t, tr.Hops, 2)

	helperAddr, err := n.HelperAddressOf(item1)
	require.NoError(t, err)
	owner, err := n.OwnerOf(item1)
	require.NoError(t, err)
	require.Equal(t, helperAddr, owner)

	c.advance(21 * 24 * time.Hour)
	tr, err = n.Claim(ctx, alice, item1, false, staking.DefaultMinClaimFee, 2)
	require.NoError(t, err)
	_, failed := tr.Failed()
	require.False(t, failed)
	require.Equal(t, "3000000000", balance(t, n, bank.AssetToken, alice))
	require.Equal(t, "97000000000", balance(t, n, bank.AssetToken, walletAddr))

	h, err := n.Helper(item1)
	require.NoError(t, err)
	require.Equal(t, staking.HelperStaked, h.Status)
	require.Equal(t, c.now.Unix(), h.StakedAt)

	c.advance(7 * 24 * time.Hour)
	_, err = n.Claim(ctx, alice, item1, true, staking.DefaultMinClaimFee, 3)
	require.NoError(t, err)
	owner, err = n.OwnerOf(item1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
	require.Equal(t, "4000000000", balance(t, n, bank.AssetToken, alice))

	staked, err := n.ItemsStakedBy(alice)
	require.NoError(t, err)
	require.Empty(t, staked)

	backlog, _, cancel := broadcaster.Subscribe(0, 1)
	cancel()
	var seen []string
	for _, rec := range backlog {
		seen = append(seen, rec.Event.Type)
	}
	require.Contains(t, seen, staking.EventTypeItemStaked)
	require.Contains(t, seen, staking.EventTypeClaimPaid)
	require.Contains(t, seen, staking.EventTypeItemReleased)

	// Native value: stake fee kept by the master, two claim fees collected.
	spent := new(big.Int).Add(staking.DefaultStakeFee, new(big.Int).Mul(staking.DefaultMinClaimFee, big.NewInt(2)))
	require.Equal(t, new(big.Int).Sub(big.NewInt(10*unit), spent).String(), balance(t, n, bank.AssetNative, alice))
}

func TestNodeDeclinedStakeReturnsItemAndValue(t *testing.T) {
	n, _ := newTestNode(t, storage.NewMemDB())
	ctx := context.Background()

	tr, err := n.StakeWithPayload(ctx, alice, item1, []byte{9}, staking.DefaultStakeFee, 1)
	require.NoError(t, err)
	require.Equal(t, coreerrors.CodeOK, tr.ExitCode())
	require.Len(t, tr.Events, 1)
	require.Equal(t, staking.EventTypeStakeDeclined, tr.Events[0].Type)

	owner, err := n.OwnerOf(item1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
	require.Equal(t, "10000000000", balance(t, n, bank.AssetNative, alice))
}

func TestNodeClaimFailuresLeaveStateUntouched(t *testing.T) {
	n, c := newTestNode(t, storage.NewMemDB())
	ctx := context.Background()
	_, err := n.Stake(ctx, alice, item1, staking.Lock7Days, staking.DefaultStakeFee, 1)
	require.NoError(t, err)

	c.advance(6 * 24 * time.Hour)
	tr, err := n.Claim(ctx, alice, item1, false, staking.DefaultMinClaimFee, 2)
	require.NoError(t, err)
	require.Equal(t, staking.CodeLockNotElapsed, tr.ExitCode())

	c.advance(24 * time.Hour)
	tr, err = n.Claim(ctx, alice, item1, false, big.NewInt(1), 3)
	require.NoError(t, err)
	require.Equal(t, staking.CodeInsufficientFee, tr.ExitCode())

	require.Equal(t, "0", balance(t, n, bank.AssetToken, alice))
	// Failed claims bounce the attached fee back.
	expected := new(big.Int).Sub(big.NewInt(10*unit), staking.DefaultStakeFee)
	require.Equal(t, expected.String(), balance(t, n, bank.AssetNative, alice))

	_, err = n.Claim(ctx, alice, item2, false, staking.DefaultMinClaimFee, 4)
	require.ErrorIs(t, err, ErrNoHelper)
}

func TestNodeReserveDepletionRefundsFee(t *testing.T) {
	n, c := newTestNode(t, storage.NewMemDB())
	ctx := context.Background()
	_, err := n.Stake(ctx, alice, item1, staking.Lock7Days, staking.DefaultStakeFee, 1)
	require.NoError(t, err)

	tr, err := n.Submit(ctx, adminAddr, masterAddr, nil, 2, &staking.AdminWithdraw{Amount: big.NewInt(100 * unit)}, false)
	require.NoError(t, err)
	require.Equal(t, coreerrors.CodeOK, tr.ExitCode())
	require.Equal(t, "100000000000", balance(t, n, bank.AssetToken, adminAddr))

	c.advance(7 * 24 * time.Hour)
	tr, err = n.Claim(ctx, alice, item1, false, staking.DefaultMinClaimFee, 3)
	require.NoError(t, err)
	hop, failed := tr.Failed()
	require.True(t, failed)
	require.Equal(t, staking.CodeReserveDepleted, hop.ExitCode)

	h, err := n.Helper(item1)
	require.NoError(t, err)
	require.False(t, h.ClaimPending)
	expected := new(big.Int).Sub(big.NewInt(10*unit), staking.DefaultStakeFee)
	require.Equal(t, expected.String(), balance(t, n, bank.AssetNative, alice))

	// Refilling the reserve lets the same claim through.
	require.NoError(t, n.MintTokens(minterAddr, adminAddr, big.NewInt(unit)))
	_, err = n.FundReserve(ctx, adminAddr, big.NewInt(5*unit), 4)
	require.NoError(t, err)
	tr, err = n.Claim(ctx, alice, item1, false, staking.DefaultMinClaimFee, 5)
	require.NoError(t, err)
	_, failed = tr.Failed()
	require.False(t, failed)
	require.Equal(t, "1000000000", balance(t, n, bank.AssetToken, alice))
}

func TestNodeRejectsMessagesFromInternalAddresses(t *testing.T) {
	n, c := newTestNode(t, storage.NewMemDB())
	ctx := context.Background()
	_, err := n.Stake(ctx, alice, item2, staking.Lock7Days, staking.DefaultStakeFee, 1)
	require.NoError(t, err)
	helper2, err := n.HelperAddressOf(item2)
	require.NoError(t, err)
	snap, err := n.Helper(item2)
	require.NoError(t, err)
	c.advance(8 * 24 * time.Hour)

	cases := []struct {
		name string
		from [20]byte
		to   [20]byte
		body types.Message
	}{
		{"item notification", item1, masterAddr, &staking.OwnershipAssigned{PrevOwner: bob, Payload: []byte{7}}},
		{"helper relay", helper2, masterAddr, &staking.ClaimRelay{Item: item2, Staker: alice, Elapsed: 8 * 24 * 3600, Lock: staking.Lock7Days, Rarity: snap.Rarity}},
		{"wallet deposit", walletAddr, masterAddr, &staking.ReserveDeposit{Amount: big.NewInt(unit), Sender: bob}},
		{"master reply", masterAddr, helper2, &staking.ClaimReply{Release: true, Payout: big.NewInt(0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := n.Submit(ctx, tc.from, tc.to, nil, 9, tc.body, false)
			require.ErrorIs(t, err, ErrReservedSender)
			require.Nil(t, tr)
		})
	}

	owner, err := n.OwnerOf(item1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
	owner, err = n.OwnerOf(item2)
	require.NoError(t, err)
	require.Equal(t, helper2, owner)
	staked, err := n.ItemsStakedBy(bob)
	require.NoError(t, err)
	require.Empty(t, staked)
	require.Equal(t, "0", balance(t, n, bank.AssetToken, alice))
	require.Equal(t, "100000000000", balance(t, n, bank.AssetToken, walletAddr))
}

func TestNodeStakeNotificationWithoutCustodyFails(t *testing.T) {
	n, _ := newTestNode(t, storage.NewMemDB())
	tr, err := n.router.Deliver(context.Background(), types.Envelope{
		From: item1,
		To:   masterAddr,
		Now:  n.now(),
		Body: &staking.OwnershipAssigned{PrevOwner: bob, Payload: []byte{7}},
	})
	require.NoError(t, err)
	require.Len(t, tr.Hops, 1)
	require.Equal(t, staking.CodeUnauthorized, tr.ExitCode())
	require.Contains(t, tr.Hops[0].Error, "does not hold item")

	staked, err := n.ItemsStakedBy(bob)
	require.NoError(t, err)
	require.Empty(t, staked)
	owner, err := n.OwnerOf(item1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
	snap, err := n.Snapshot()
	require.NoError(t, err)
	require.Zero(t, snap.Treasury.FeesCollected.Sign())
}

func TestNodeStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	n, _ := newTestNode(t, db)
	_, err = n.Stake(context.Background(), alice, item2, staking.Lock14Days, staking.DefaultStakeFee, 1)
	require.NoError(t, err)
	n.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	restarted, err := NewNode(db, staking.DefaultParams())
	require.NoError(t, err)
	defer restarted.Close()
	restarted.SetMetrics(nil)

	installed, err := restarted.InitGenesis(testGenesis())
	require.NoError(t, err)
	require.False(t, installed)

	snap, err := restarted.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.StakedItems, 1)
	require.Equal(t, item2, snap.StakedItems[0].Item)
	require.Equal(t, "100000000000", snap.Treasury.Reserve.String())

	est, err := restarted.EstimatedReward(item2, 28*staking.SecondsPerDay)
	require.NoError(t, err)
	require.Equal(t, "2000000000", est.Total.String())
}

func TestNodeRequiresGenesis(t *testing.T) {
	n, err := NewNode(storage.NewMemDB(), staking.DefaultParams())
	require.NoError(t, err)
	_, err = n.Claim(context.Background(), alice, item1, false, nil, 1)
	require.ErrorIs(t, err, ErrNotInitialised)
	_, err = n.Config()
	require.ErrorIs(t, err, ErrNotInitialised)
}
