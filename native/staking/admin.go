package staking

import (
	"math/big"

	coreerrors "nftstake/core/errors"
	"nftstake/core/types"
)

// admin applies an admin operation. The caller has already checked the sender.
func (m *Master) admin(st MasterState, cfg *Config, env *types.Envelope) (*types.Outcome, error) {
	out := &types.Outcome{}
	switch msg := env.Body.(type) {
	case *AdminAddItems:
		for _, entry := range msg.Items {
			if err := st.StakingCatalogPut(entry.Item, entry.Rarity); err != nil {
				return nil, err
			}
		}
		out.Emit(AdminUpdatedEvent("add_items", len(msg.Items)))
	case *AdminRemoveItems:
		// Staked items stay in custody; only new stakes are affected.
		for _, item := range msg.Items {
			if err := st.StakingCatalogDelete(item); err != nil {
				return nil, err
			}
		}
		out.Emit(AdminUpdatedEvent("remove_items", len(msg.Items)))
	case *AdminAddRarity:
		for _, entry := range msg.Rarities {
			if entry.Reward == nil {
				return nil, coreerrors.Wrap(ErrInvalidMessage, "rarity %d without reward", entry.ID)
			}
			if err := st.StakingRarityPut(entry.ID, entry.Reward.Clone()); err != nil {
				return nil, err
			}
		}
		out.Emit(AdminUpdatedEvent("add_rarity", len(msg.Rarities)))
	case *AdminRemoveRarity:
		// Helpers keep the snapshot taken at stake time.
		for _, id := range msg.IDs {
			if err := st.StakingRarityDelete(id); err != nil {
				return nil, err
			}
		}
		out.Emit(AdminUpdatedEvent("remove_rarity", len(msg.IDs)))
	case *AdminChangeValidUntil:
		if msg.ValidUntil < 0 {
			return nil, coreerrors.Wrap(ErrInvalidMessage, "negative deadline")
		}
		updated := *cfg
		updated.ValidUntil = msg.ValidUntil
		if err := st.StakingConfigPut(&updated); err != nil {
			return nil, err
		}
		out.Emit(AdminUpdatedEvent("change_valid_until", 1))
	case *AdminWithdraw:
		if msg.Amount == nil || msg.Amount.Sign() <= 0 {
			return nil, coreerrors.Wrap(ErrInvalidMessage, "withdraw amount must be positive")
		}
		treasury, err := loadTreasury(st)
		if err != nil {
			return nil, err
		}
		if treasury.Reserve.Cmp(msg.Amount) < 0 {
			return nil, coreerrors.Wrap(ErrReserveDepleted, "withdraw %s exceeds reserve %s", msg.Amount, treasury.Reserve)
		}
		treasury.Reserve = new(big.Int).Sub(treasury.Reserve, msg.Amount)
		if err := st.StakingTreasuryPut(treasury); err != nil {
			return nil, err
		}
		out.Apply(types.TokenTransfer{From: cfg.Address, To: cfg.Admin, Amount: new(big.Int).Set(msg.Amount), QueryID: env.QueryID})
		out.Emit(AdminUpdatedEvent("withdraw", 1))
		m.telemetry.SetReserve(treasury.Reserve)
	default:
		return nil, ErrUnknownOp
	}
	return out, nil
}
