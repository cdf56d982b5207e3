package core

import (
	"math/big"

	"nftstake/core/state"
	"nftstake/native/bank"
	"nftstake/native/staking"
)

// HelperAddressOf returns the deterministic helper address of item.
func (n *Node) HelperAddressOf(item [20]byte) ([20]byte, error) {
	cfg, _, _, err := n.wired()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.HelperAddressOf(item), nil
}

// Snapshot returns every master dictionary with config and treasury.
func (n *Node) Snapshot() (*staking.Snapshot, error) {
	var snap *staking.Snapshot
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		snap, err = staking.ContractSnapshot(tx)
		return err
	})
	return snap, err
}

// EstimatedReward projects the payout of a claim made elapsed seconds after
// the item's current stakedAt.
func (n *Node) EstimatedReward(item [20]byte, elapsed int64) (*staking.Estimate, error) {
	var est *staking.Estimate
	now := n.now()
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		est, err = n.master.EstimatedReward(tx, item, elapsed, now)
		return err
	})
	return est, err
}

// ItemsStakedBy lists the items user currently has staked.
func (n *Node) ItemsStakedBy(user [20]byte) ([][20]byte, error) {
	var items [][20]byte
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		items, err = staking.ItemsStakedBy(tx, user)
		return err
	})
	return items, err
}

// Helper returns the helper record of item.
func (n *Node) Helper(item [20]byte) (*staking.Helper, error) {
	var h *staking.Helper
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		h, err = staking.HelperRecord(tx, item)
		return err
	})
	return h, err
}

// OwnerOf returns the current owner of an NFT item.
func (n *Node) OwnerOf(item [20]byte) ([20]byte, error) {
	var owner [20]byte
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		owner, err = n.registry.OwnerOf(tx, item)
		return err
	})
	return owner, err
}

// ItemsOwnedBy lists the NFT items held by owner.
func (n *Node) ItemsOwnedBy(owner [20]byte) ([][20]byte, error) {
	var items [][20]byte
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		items, err = tx.NFTOwnedBy(owner)
		return err
	})
	return items, err
}

// Balance returns the balance of addr for asset.
func (n *Node) Balance(asset bank.Asset, addr [20]byte) (*big.Int, error) {
	_, _, ledger, err := n.wired()
	if err != nil {
		return nil, err
	}
	var bal *big.Int
	err = n.state.View(func(tx *state.Tx) error {
		var err error
		bal, err = ledger.Balance(tx, asset, addr)
		return err
	})
	return bal, err
}
