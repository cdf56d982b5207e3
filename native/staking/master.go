package staking

import (
	"fmt"
	"log/slog"
	"math/big"

	coreerrors "nftstake/core/errors"
	"nftstake/core/types"
	"nftstake/observability/metrics"
)

// Decline reasons reported when a stake notification is returned.
const (
	DeclineNotInCatalog  = "item_not_in_catalog"
	DeclineRarityMissing = "rarity_missing"
	DeclineExpired       = "valid_until_passed"
	DeclineBadOption     = "invalid_lock_option"
	DeclineFeeTooLow     = "stake_fee_not_covered"
	DeclineAlreadyStaked = "already_staked"
)

// Master wires the registry, payout and admin logic to its persisted state.
type Master struct {
	params    Params
	logger    *slog.Logger
	telemetry *metrics.StakingMetrics
}

// NewMaster constructs a master engine with the supplied parameters.
func NewMaster(params Params) *Master {
	return &Master{params: params, logger: slog.Default(), telemetry: metrics.Staking()}
}

// Params returns the protocol parameters the master was built with.
func (m *Master) Params() Params { return m.params }

// SetLogger overrides the logger.
func (m *Master) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger
}

// SetMetrics overrides the telemetry sink; nil disables it.
func (m *Master) SetMetrics(telemetry *metrics.StakingMetrics) { m.telemetry = telemetry }

// Receive processes one message addressed to the master.
func (m *Master) Receive(st MasterState, env *types.Envelope) (*types.Outcome, error) {
	if m == nil || st == nil {
		return nil, errNilState
	}
	cfg, err := loadConfig(st)
	if err != nil {
		return nil, err
	}
	if env.Bounced {
		return m.handleBounce(env), nil
	}
	switch msg := env.Body.(type) {
	case *OwnershipAssigned:
		return m.stake(st, cfg, env, msg)
	case *ClaimRelay:
		return m.claimRelay(st, cfg, env, msg)
	case *ReserveDeposit:
		return m.deposit(st, cfg, env, msg)
	case *AdminWithdraw, *AdminAddItems, *AdminRemoveItems, *AdminAddRarity, *AdminRemoveRarity, *AdminChangeValidUntil:
		if env.From != cfg.Admin {
			return nil, ErrUnauthorized
		}
		return m.admin(st, cfg, env)
	case nil:
		return nil, ErrInvalidMessage
	default:
		return nil, coreerrors.Wrap(ErrUnknownOp, "master op 0x%08x", msg.Opcode())
	}
}

func (m *Master) decline(cfg *Config, env *types.Envelope, owner [20]byte, reason string) *types.Outcome {
	item := env.From
	out := &types.Outcome{}
	out.Apply(types.ItemTransfer{Item: item, From: cfg.Address, To: owner, QueryID: env.QueryID})
	if value := env.AttachedValue(); value.Sign() > 0 {
		out.Apply(types.ValueTransfer{From: cfg.Address, To: owner, Amount: value})
	}
	out.Emit(StakeDeclinedEvent(item, owner, reason))
	m.telemetry.ObserveDecline(reason)
	m.logger.Info("staking master: stake declined",
		slog.String("item", itemString(item)),
		slog.String("reason", reason))
	return out
}

// stake handles the NFT transfer notification. A notification for an item the
// master does not hold fails outright. Precondition failures return the item
// and leave every dictionary untouched.
func (m *Master) stake(st MasterState, cfg *Config, env *types.Envelope, msg *OwnershipAssigned) (*types.Outcome, error) {
	item := env.From
	staker := msg.PrevOwner
	holder, held, err := st.NFTOwnerGet(item)
	if err != nil {
		return nil, err
	}
	if !held || holder != cfg.Address {
		return nil, coreerrors.Wrap(ErrItemNotHeld, "item %s", itemString(item))
	}
	rarityID, ok, err := st.StakingCatalogGet(item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return m.decline(cfg, env, staker, DeclineNotInCatalog), nil
	}
	if env.Now > cfg.ValidUntil {
		return m.decline(cfg, env, staker, DeclineExpired), nil
	}
	lock, ok := ParseLockPayload(msg.Payload)
	if !ok {
		return m.decline(cfg, env, staker, DeclineBadOption), nil
	}
	value := env.AttachedValue()
	fee := newBigInt(m.params.StakeFee)
	if value.Cmp(fee) < 0 {
		return m.decline(cfg, env, staker, DeclineFeeTooLow), nil
	}
	if _, staked, err := st.StakingStakedGet(item); err != nil {
		return nil, err
	} else if staked {
		return m.decline(cfg, env, staker, DeclineAlreadyStaked), nil
	}
	reward, ok, err := st.StakingRarityGet(rarityID)
	if err != nil {
		return nil, err
	}
	if !ok || reward == nil {
		return m.decline(cfg, env, staker, DeclineRarityMissing), nil
	}
	snapshot := RaritySnapshot{ID: rarityID, CommonReward: newBigInt(reward.CommonReward), BoostReward: newBigInt(reward.BoostReward)}

	helper := cfg.HelperAddressOf(item)
	if _, known, err := st.StakingHelperIndexGet(helper); err != nil {
		return nil, err
	} else if !known {
		if err := st.StakingHelperIndexPut(helper, item); err != nil {
			return nil, err
		}
	}
	if err := st.StakingStakedPut(item, staker); err != nil {
		return nil, err
	}
	if m.params.counts(rarityID) {
		ub, err := loadBoost(st, staker)
		if err != nil {
			return nil, err
		}
		ub.adjust(env.Now, 1, snapshot.BoostReward, m.params.BoostThreshold)
		if err := st.StakingBoostPut(staker, ub); err != nil {
			return nil, err
		}
	}
	treasury, err := loadTreasury(st)
	if err != nil {
		return nil, err
	}
	treasury.FeesCollected = new(big.Int).Add(treasury.FeesCollected, fee)
	if err := st.StakingTreasuryPut(treasury); err != nil {
		return nil, err
	}

	out := &types.Outcome{}
	out.Apply(types.ItemTransfer{Item: item, From: cfg.Address, To: helper, QueryID: env.QueryID})
	out.Send(env.Derive(helper, &StakeCommand{Staker: staker, StakedAt: env.Now, Lock: lock, Rarity: snapshot}, false))
	if refund := new(big.Int).Sub(value, fee); refund.Sign() > 0 {
		out.Apply(types.ValueTransfer{From: cfg.Address, To: staker, Amount: refund})
	}
	out.Emit(ItemStakedEvent(item, staker, helper, lock, rarityID, env.Now))
	m.telemetry.ObserveStake(uint8(lock))
	return out, nil
}

// claimRelay settles a claim validated by the item's helper. Every check runs
// before the first write.
func (m *Master) claimRelay(st MasterState, cfg *Config, env *types.Envelope, msg *ClaimRelay) (*types.Outcome, error) {
	if env.From != cfg.HelperAddressOf(msg.Item) {
		return nil, ErrUnauthorized
	}
	staker, ok, err := st.StakingStakedGet(msg.Item)
	if err != nil {
		return nil, err
	}
	if !ok || staker != msg.Staker {
		return nil, ErrNotStaked
	}
	if !msg.Lock.Valid() || msg.Elapsed < 0 {
		return nil, coreerrors.Wrap(ErrInvalidMessage, "lock %d elapsed %d", msg.Lock, msg.Elapsed)
	}
	period := msg.Lock.Period()
	periods := msg.Elapsed / period
	common := new(big.Int).Mul(newBigInt(msg.Rarity.CommonReward), big.NewInt(periods))

	// Catalog removal only blocks new stakes; the staker decides when to leave.
	release := msg.ReturnItem

	ub, err := loadBoost(st, staker)
	if err != nil {
		return nil, err
	}
	boost := ub.Flush(env.Now, m.params.BoostThreshold)
	if release && m.params.counts(msg.Rarity.ID) {
		ub.adjust(env.Now, -1, msg.Rarity.BoostReward, m.params.BoostThreshold)
	}
	total := new(big.Int).Add(common, boost)

	treasury, err := loadTreasury(st)
	if err != nil {
		return nil, err
	}
	if treasury.Reserve.Cmp(total) < 0 {
		return nil, coreerrors.Wrap(ErrReserveDepleted, "payout %s exceeds reserve %s", total, treasury.Reserve)
	}
	treasury.Reserve = new(big.Int).Sub(treasury.Reserve, total)
	treasury.FeesCollected = new(big.Int).Add(treasury.FeesCollected, env.AttachedValue())

	if err := st.StakingBoostPut(staker, ub); err != nil {
		return nil, err
	}
	if err := st.StakingTreasuryPut(treasury); err != nil {
		return nil, err
	}
	if release {
		if err := st.StakingStakedDelete(msg.Item); err != nil {
			return nil, err
		}
	}

	out := &types.Outcome{}
	if total.Sign() > 0 {
		out.Apply(types.TokenTransfer{From: cfg.Address, To: staker, Amount: total, QueryID: env.QueryID})
	}
	reply := &ClaimReply{Release: release, Payout: new(big.Int).Set(total)}
	if !release {
		reply.Advance = periods * period
	}
	out.Send(env.Derive(env.From, reply, false))
	out.Emit(ClaimPaidEvent(msg.Item, staker, periods, common, boost, release))
	m.telemetry.ObserveClaim(release, common, boost)
	m.telemetry.SetReserve(treasury.Reserve)
	return out, nil
}

func (m *Master) deposit(st MasterState, cfg *Config, env *types.Envelope, msg *ReserveDeposit) (*types.Outcome, error) {
	if env.From != cfg.TokenWallet {
		return nil, ErrUnauthorized
	}
	if msg.Amount == nil || msg.Amount.Sign() <= 0 {
		return nil, coreerrors.Wrap(ErrInvalidMessage, "deposit amount must be positive")
	}
	treasury, err := loadTreasury(st)
	if err != nil {
		return nil, err
	}
	treasury.Reserve = new(big.Int).Add(treasury.Reserve, msg.Amount)
	if err := st.StakingTreasuryPut(treasury); err != nil {
		return nil, err
	}
	out := &types.Outcome{}
	out.Emit(ReserveDepositedEvent(msg.Sender, msg.Amount, treasury.Reserve))
	m.telemetry.SetReserve(treasury.Reserve)
	return out, nil
}

func (m *Master) handleBounce(env *types.Envelope) *types.Outcome {
	op := uint32(0)
	if env.Body != nil {
		op = env.Body.Opcode()
	}
	m.logger.Warn("staking master: outbound message bounced",
		slog.String("from", accountString(env.From)),
		slog.String("op", fmt.Sprintf("0x%08x", op)),
		slog.Uint64("queryId", env.QueryID))
	return &types.Outcome{}
}
