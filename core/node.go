package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"nftstake/core/events"
	"nftstake/core/router"
	"nftstake/core/state"
	"nftstake/core/types"
	"nftstake/native/bank"
	"nftstake/native/nft"
	"nftstake/native/staking"
	"nftstake/observability/metrics"
	"nftstake/storage"
)

var (
	ErrNotInitialised = errors.New("node: genesis not installed")
	ErrNoHelper       = errors.New("node: item has no helper yet")
	ErrReservedSender = errors.New("node: sender address is not an external account")
)

// Node is the central controller wiring state, actors and the external
// ledgers together.
type Node struct {
	db       storage.Database
	state    *state.Manager
	router   *router.Router
	params   staking.Params
	master   *staking.Master
	registry *nft.Registry

	mu     sync.RWMutex
	cfg    *staking.Config
	helper *staking.HelperEngine
	ledger *bank.Ledger

	// ledgerMu serialises writes to the NFT registry and bank balances.
	ledgerMu sync.Mutex

	nowFn  func() time.Time
	logger *slog.Logger
}

// NewNode opens the state in db and loads the master configuration when a
// genesis was installed earlier.
func NewNode(db storage.Database, params staking.Params) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	manager := state.NewManager(db)
	if err := manager.EnsureStateVersion(false); err != nil {
		return nil, err
	}
	n := &Node{
		db:       db,
		state:    manager,
		params:   params,
		master:   staking.NewMaster(params),
		registry: nft.NewRegistry(),
		nowFn:    time.Now,
		logger:   slog.Default(),
	}
	n.router = router.New(manager, resolver{node: n}, executor{node: n})
	if err := n.loadConfig(); err != nil && !errors.Is(err, ErrNotInitialised) {
		return nil, err
	}
	return n, nil
}

func (n *Node) loadConfig() error {
	var cfg *staking.Config
	err := n.state.View(func(tx *state.Tx) error {
		c, ok, err := tx.StakingConfigGet()
		if err != nil {
			return err
		}
		if ok {
			cfg = c
		}
		return nil
	})
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotInitialised
	}
	helper := staking.NewHelperEngine(cfg.Address, n.params)
	helper.SetLogger(n.logger)
	n.mu.Lock()
	n.cfg = cfg
	n.helper = helper
	n.ledger = bank.NewLedger(cfg.TokenMinter)
	n.mu.Unlock()
	return nil
}

// SetLogger overrides the logger of the node and its engines.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
	n.master.SetLogger(logger)
	n.router.SetLogger(logger)
	n.mu.Lock()
	if n.helper != nil {
		n.helper.SetLogger(logger)
	}
	n.mu.Unlock()
}

// SetEmitter configures where committed events are published.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.router.SetEmitter(emitter)
}

// SetMetrics overrides the telemetry sink; nil disables it.
func (n *Node) SetMetrics(telemetry *metrics.StakingMetrics) {
	n.master.SetMetrics(telemetry)
	n.router.SetMetrics(telemetry)
}

// SetNowFunc overrides the clock used to timestamp ingress messages.
func (n *Node) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	n.nowFn = now
}

// Params returns the protocol parameters.
func (n *Node) Params() staking.Params { return n.params }

// Config returns a copy of the current master configuration.
func (n *Node) Config() (staking.Config, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.cfg == nil {
		return staking.Config{}, ErrNotInitialised
	}
	return *n.cfg, nil
}

func (n *Node) wired() (*staking.Config, *staking.HelperEngine, *bank.Ledger, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.cfg == nil {
		return nil, nil, nil, ErrNotInitialised
	}
	return n.cfg, n.helper, n.ledger, nil
}

func (n *Node) now() int64 { return n.nowFn().Unix() }

// Submit delivers a message from an external account. Attached value is
// debited from the sender before delivery.
func (n *Node) Submit(ctx context.Context, from, to [20]byte, value *big.Int, queryID uint64, body types.Message, bounce bool) (*router.Trace, error) {
	cfg, _, _, err := n.wired()
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("node: message body required")
	}
	if err := n.checkExternal(cfg, from); err != nil {
		return nil, err
	}
	env := types.Envelope{
		ID:      uuid.New(),
		QueryID: queryID,
		From:    from,
		To:      to,
		Value:   value,
		Now:     n.now(),
		Bounce:  bounce,
		Body:    body,
	}
	if v := env.AttachedValue(); v.Sign() > 0 {
		if err := n.moveValue(from, to, v); err != nil {
			return nil, err
		}
	}
	// A refresh is needed after the deadline or other config changes.
	defer n.refreshConfig(body)
	return n.router.Deliver(ctx, env)
}

// checkExternal rejects senders the node speaks for itself: the master, its
// token wallet, helpers and NFT items. Their messages only originate inside
// the node.
func (n *Node) checkExternal(cfg *staking.Config, from [20]byte) error {
	if from == cfg.Address || from == cfg.TokenWallet {
		return ErrReservedSender
	}
	return n.state.View(func(tx *state.Tx) error {
		if _, ok, err := tx.StakingHelperIndexGet(from); err != nil {
			return err
		} else if ok {
			return ErrReservedSender
		}
		if _, ok, err := tx.NFTOwnerGet(from); err != nil {
			return err
		} else if ok {
			return ErrReservedSender
		}
		return nil
	})
}

func (n *Node) refreshConfig(body types.Message) {
	if _, ok := body.(*staking.AdminChangeValidUntil); !ok {
		return
	}
	if err := n.loadConfig(); err != nil {
		n.logger.Error("node: reload config failed", slog.Any("error", err))
	}
}

// Stake transfers item from owner to the master with the lock option as the
// forward payload, then delivers the ownership notification.
func (n *Node) Stake(ctx context.Context, owner, item [20]byte, lock staking.LockOption, value *big.Int, queryID uint64) (*router.Trace, error) {
	return n.StakeWithPayload(ctx, owner, item, []byte{byte(lock)}, value, queryID)
}

// StakeWithPayload is Stake with a raw forward payload.
func (n *Node) StakeWithPayload(ctx context.Context, owner, item [20]byte, payload []byte, value *big.Int, queryID uint64) (*router.Trace, error) {
	cfg, _, ledger, err := n.wired()
	if err != nil {
		return nil, err
	}
	var note *nft.Notification
	n.ledgerMu.Lock()
	err = n.state.Update(func(tx *state.Tx) error {
		var err error
		note, err = n.registry.Transfer(tx, owner, item, cfg.Address, queryID, payload, true)
		if err != nil {
			return err
		}
		if v := value; v != nil && v.Sign() > 0 {
			return ledger.Transfer(tx, bank.AssetNative, owner, cfg.Address, v)
		}
		return nil
	})
	n.ledgerMu.Unlock()
	if err != nil {
		return nil, err
	}
	env := types.Envelope{
		ID:      uuid.New(),
		QueryID: note.QueryID,
		From:    note.Item,
		To:      note.NewOwner,
		Value:   value,
		Now:     n.now(),
		Body:    &staking.OwnershipAssigned{PrevOwner: note.PrevOwner, Payload: note.Payload},
	}
	return n.router.Deliver(ctx, env)
}

// Claim asks the helper of item to settle rewards for staker.
func (n *Node) Claim(ctx context.Context, staker, item [20]byte, returnItem bool, fee *big.Int, queryID uint64) (*router.Trace, error) {
	cfg, _, _, err := n.wired()
	if err != nil {
		return nil, err
	}
	helper := cfg.HelperAddressOf(item)
	known := false
	if err := n.state.View(func(tx *state.Tx) error {
		var err error
		_, known, err = tx.StakingHelperIndexGet(helper)
		return err
	}); err != nil {
		return nil, err
	}
	if !known {
		return nil, ErrNoHelper
	}
	return n.Submit(ctx, staker, helper, fee, queryID, &staking.Claim{ReturnItem: returnItem}, true)
}

// FundReserve moves reward tokens from sender to the master's token wallet
// and notifies the master.
func (n *Node) FundReserve(ctx context.Context, sender [20]byte, amount *big.Int, queryID uint64) (*router.Trace, error) {
	cfg, _, ledger, err := n.wired()
	if err != nil {
		return nil, err
	}
	n.ledgerMu.Lock()
	err = n.state.Update(func(tx *state.Tx) error {
		return ledger.Transfer(tx, bank.AssetToken, sender, cfg.TokenWallet, amount)
	})
	n.ledgerMu.Unlock()
	if err != nil {
		return nil, err
	}
	env := types.Envelope{
		ID:      uuid.New(),
		QueryID: queryID,
		From:    cfg.TokenWallet,
		To:      cfg.Address,
		Now:     n.now(),
		Body:    &staking.ReserveDeposit{Amount: new(big.Int).Set(amount), Sender: sender},
	}
	return n.router.Deliver(ctx, env)
}

// MintItem registers a new NFT item owned by owner.
func (n *Node) MintItem(item, owner [20]byte) error {
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	return n.state.Update(func(tx *state.Tx) error {
		return n.registry.Mint(tx, item, owner)
	})
}

// MintTokens issues reward tokens. Only the configured minter may call it.
func (n *Node) MintTokens(caller, to [20]byte, amount *big.Int) error {
	_, _, ledger, err := n.wired()
	if err != nil {
		return err
	}
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	return n.state.Update(func(tx *state.Tx) error {
		return ledger.Mint(tx, caller, to, amount)
	})
}

func (n *Node) moveValue(from, to [20]byte, amount *big.Int) error {
	_, _, ledger, err := n.wired()
	if err != nil {
		return err
	}
	n.ledgerMu.Lock()
	defer n.ledgerMu.Unlock()
	return n.state.Update(func(tx *state.Tx) error {
		return ledger.Transfer(tx, bank.AssetNative, from, to, amount)
	})
}

// Close releases the database.
func (n *Node) Close() {
	if n.db != nil {
		n.db.Close()
	}
}
