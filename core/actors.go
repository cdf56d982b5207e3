package core

import (
	"context"
	"fmt"
	"math/big"

	"nftstake/core/router"
	"nftstake/core/state"
	"nftstake/core/types"
	"nftstake/native/bank"
	"nftstake/native/staking"
)

type masterActor struct {
	engine *staking.Master
}

func (masterActor) Kind() string { return "master" }

func (a masterActor) Receive(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
	return a.engine.Receive(tx, env)
}

type helperActor struct {
	engine *staking.HelperEngine
	item   [20]byte
}

func (helperActor) Kind() string { return "helper" }

func (a helperActor) Receive(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
	return a.engine.Receive(tx, a.item, env)
}

// resolver routes the master address to the master and helper addresses
// through the helper arena index.
type resolver struct {
	node *Node
}

func (r resolver) Resolve(tx *state.Tx, addr [20]byte) (router.Actor, bool, error) {
	cfg, helper, _, err := r.node.wired()
	if err != nil {
		return nil, false, err
	}
	if addr == cfg.Address {
		return masterActor{engine: r.node.master}, true, nil
	}
	item, ok, err := tx.StakingHelperIndexGet(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	return helperActor{engine: helper, item: item}, true, nil
}

// executor applies effects against the NFT registry and the bank. Token
// payouts by the master are debited from its token wallet.
type executor struct {
	node *Node
}

func (e executor) Execute(_ context.Context, effect types.Effect) error {
	cfg, _, ledger, err := e.node.wired()
	if err != nil {
		return err
	}
	e.node.ledgerMu.Lock()
	defer e.node.ledgerMu.Unlock()
	return e.node.state.Update(func(tx *state.Tx) error {
		switch eff := effect.(type) {
		case types.ItemTransfer:
			_, err := e.node.registry.Transfer(tx, eff.From, eff.Item, eff.To, eff.QueryID, nil, false)
			return err
		case types.TokenTransfer:
			from := eff.From
			if from == cfg.Address {
				from = cfg.TokenWallet
			}
			return ledger.Transfer(tx, bank.AssetToken, from, eff.To, eff.Amount)
		case types.ValueTransfer:
			return ledger.Transfer(tx, bank.AssetNative, eff.From, eff.To, eff.Amount)
		default:
			return fmt.Errorf("node: unsupported effect %s", effect.EffectKind())
		}
	})
}

func (e executor) MoveValue(_ context.Context, from, to [20]byte, amount *big.Int) error {
	return e.node.moveValue(from, to, amount)
}
