package staking

import (
	"log/slog"
	"math/big"

	coreerrors "nftstake/core/errors"
	"nftstake/core/types"
)

// HelperEngine runs the per-item state machine. One engine serves every
// helper; the item being addressed is resolved by the caller.
type HelperEngine struct {
	master [20]byte
	params Params
	logger *slog.Logger
}

// NewHelperEngine constructs the helper engine bound to its master.
func NewHelperEngine(master [20]byte, params Params) *HelperEngine {
	return &HelperEngine{master: master, params: params, logger: slog.Default()}
}

// SetLogger overrides the logger used for bounce diagnostics.
func (e *HelperEngine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Receive processes one message addressed to the helper of item.
func (e *HelperEngine) Receive(st HelperState, item [20]byte, env *types.Envelope) (*types.Outcome, error) {
	if e == nil || st == nil {
		return nil, errNilState
	}
	h, ok, err := st.StakingHelperGet(item)
	if err != nil {
		return nil, err
	}
	if !ok || h == nil {
		h = &Helper{Item: item, Address: env.To, Status: HelperIdle}
	}
	if env.Bounced {
		return e.handleBounce(st, h, env)
	}
	switch msg := env.Body.(type) {
	case *StakeCommand:
		return e.stake(st, h, env, msg)
	case *Claim:
		return e.claim(st, h, env, msg)
	case *ClaimReply:
		return e.settle(st, h, env, msg)
	case nil:
		return nil, ErrInvalidMessage
	default:
		return nil, coreerrors.Wrap(ErrUnknownOp, "helper op 0x%08x", msg.Opcode())
	}
}

func (e *HelperEngine) stake(st HelperState, h *Helper, env *types.Envelope, msg *StakeCommand) (*types.Outcome, error) {
	if env.From != e.master {
		return nil, ErrUnauthorized
	}
	if h.Status == HelperStaked {
		return nil, ErrAlreadyStaked
	}
	if !msg.Lock.Valid() {
		return nil, coreerrors.Wrap(ErrInvalidMessage, "lock option %d", msg.Lock)
	}
	h.Status = HelperStaked
	h.Staker = msg.Staker
	h.StakedAt = msg.StakedAt
	h.Lock = msg.Lock
	h.Rarity = msg.Rarity.clone()
	h.ClaimPending = false
	h.Stakes++
	if err := st.StakingHelperPut(h); err != nil {
		return nil, err
	}
	return &types.Outcome{}, nil
}

func (e *HelperEngine) claim(st HelperState, h *Helper, env *types.Envelope, msg *Claim) (*types.Outcome, error) {
	if h.Status != HelperStaked {
		return nil, ErrNotStaked
	}
	if env.From != h.Staker {
		return nil, ErrUnauthorized
	}
	fee := env.AttachedValue()
	if fee.Cmp(newBigInt(e.params.MinClaimFee)) < 0 {
		return nil, coreerrors.Wrap(ErrInsufficientFee, "attached %s, need %s", fee, newBigInt(e.params.MinClaimFee))
	}
	if env.Now < h.UnlocksAt() {
		return nil, coreerrors.Wrap(ErrLockNotElapsed, "unlocks at %d", h.UnlocksAt())
	}
	if h.ClaimPending {
		return nil, ErrClaimPending
	}
	elapsed := env.Now - h.StakedAt
	h.ClaimPending = true
	if err := st.StakingHelperPut(h); err != nil {
		return nil, err
	}
	out := &types.Outcome{}
	relay := env.Derive(e.master, &ClaimRelay{
		Item:       h.Item,
		Staker:     h.Staker,
		Elapsed:    elapsed,
		ReturnItem: msg.ReturnItem,
		Lock:       h.Lock,
		Rarity:     h.Rarity.clone(),
	}, true)
	relay.Value = fee
	out.Send(relay)
	out.Emit(ClaimForwardedEvent(h.Item, h.Staker, elapsed, msg.ReturnItem))
	return out, nil
}

func (e *HelperEngine) settle(st HelperState, h *Helper, env *types.Envelope, msg *ClaimReply) (*types.Outcome, error) {
	if env.From != e.master {
		return nil, ErrUnauthorized
	}
	if h.Status != HelperStaked {
		return nil, ErrNotStaked
	}
	out := &types.Outcome{}
	if msg.Release {
		staker := h.Staker
		out.Apply(types.ItemTransfer{Item: h.Item, From: h.Address, To: staker, QueryID: env.QueryID})
		out.Emit(ItemReleasedEvent(h.Item, staker))
		h.Status = HelperIdle
		h.LastStaker = staker
		h.Staker = [20]byte{}
		h.StakedAt = 0
		h.Rarity = RaritySnapshot{CommonReward: big.NewInt(0), BoostReward: big.NewInt(0)}
	} else {
		if msg.Advance < 0 {
			return nil, coreerrors.Wrap(ErrInvalidMessage, "negative advance %d", msg.Advance)
		}
		h.StakedAt += msg.Advance
	}
	h.ClaimPending = false
	if err := st.StakingHelperPut(h); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *HelperEngine) handleBounce(st HelperState, h *Helper, env *types.Envelope) (*types.Outcome, error) {
	out := &types.Outcome{}
	if _, ok := env.Body.(*ClaimRelay); !ok {
		return out, nil
	}
	e.logger.Warn("staking helper: claim relay bounced",
		slog.String("item", itemString(h.Item)),
		slog.Uint64("queryId", env.QueryID))
	if !h.ClaimPending {
		return out, nil
	}
	h.ClaimPending = false
	if err := st.StakingHelperPut(h); err != nil {
		return nil, err
	}
	// The attached claim fee travels back with the bounce.
	if fee := env.AttachedValue(); fee.Sign() > 0 && !isZeroAddress(h.Staker) {
		out.Apply(types.ValueTransfer{From: h.Address, To: h.Staker, Amount: fee})
	}
	return out, nil
}
