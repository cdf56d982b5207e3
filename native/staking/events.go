package staking

import (
	"math/big"
	"strconv"

	"nftstake/core/types"
	"nftstake/crypto"
)

const (
	// EventTypeItemStaked is emitted when the master accepts a stake.
	EventTypeItemStaked = "staking.item.staked"
	// EventTypeStakeDeclined is emitted when a stake notification is returned.
	EventTypeStakeDeclined = "staking.stake.declined"
	// EventTypeClaimForwarded is emitted when a helper relays a valid claim.
	EventTypeClaimForwarded = "staking.claim.forwarded"
	// EventTypeClaimPaid is emitted when the master settles a claim.
	EventTypeClaimPaid = "staking.claim.paid"
	// EventTypeItemReleased is emitted when a helper hands the item back.
	EventTypeItemReleased = "staking.item.released"
	// EventTypeReserveDeposited is emitted when reward tokens reach the reserve.
	EventTypeReserveDeposited = "staking.reserve.deposited"
	// EventTypeAdminUpdated is emitted for every accepted admin operation.
	EventTypeAdminUpdated = "staking.admin.updated"
)

func accountString(addr [20]byte) string { return crypto.FromRaw(crypto.AccountPrefix, addr).String() }

func itemString(addr [20]byte) string { return crypto.FromRaw(crypto.ItemPrefix, addr).String() }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ItemStakedEvent describes an accepted stake.
func ItemStakedEvent(item, staker, helper [20]byte, lock LockOption, rarity uint16, now int64) *types.Event {
	return &types.Event{
		Type: EventTypeItemStaked,
		Attributes: map[string]string{
			"item":     itemString(item),
			"staker":   accountString(staker),
			"helper":   accountString(helper),
			"lockDays": strconv.Itoa(int(lock)),
			"rarity":   strconv.Itoa(int(rarity)),
			"stakedAt": strconv.FormatInt(now, 10),
		},
	}
}

// StakeDeclinedEvent describes a stake notification that was returned.
func StakeDeclinedEvent(item, owner [20]byte, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeStakeDeclined,
		Attributes: map[string]string{
			"item":   itemString(item),
			"owner":  accountString(owner),
			"reason": reason,
		},
	}
}

// ClaimForwardedEvent describes a claim accepted by a helper.
func ClaimForwardedEvent(item, staker [20]byte, elapsed int64, returnItem bool) *types.Event {
	return &types.Event{
		Type: EventTypeClaimForwarded,
		Attributes: map[string]string{
			"item":       itemString(item),
			"staker":     accountString(staker),
			"elapsed":    strconv.FormatInt(elapsed, 10),
			"returnItem": strconv.FormatBool(returnItem),
		},
	}
}

// ClaimPaidEvent describes a settled claim.
func ClaimPaidEvent(item, staker [20]byte, periods int64, common, boost *big.Int, release bool) *types.Event {
	total := new(big.Int).Add(newBigInt(common), newBigInt(boost))
	return &types.Event{
		Type: EventTypeClaimPaid,
		Attributes: map[string]string{
			"item":    itemString(item),
			"staker":  accountString(staker),
			"periods": strconv.FormatInt(periods, 10),
			"common":  amountString(common),
			"boost":   amountString(boost),
			"total":   total.String(),
			"release": strconv.FormatBool(release),
		},
	}
}

// ItemReleasedEvent describes the item leaving custody.
func ItemReleasedEvent(item, staker [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeItemReleased,
		Attributes: map[string]string{
			"item":   itemString(item),
			"staker": accountString(staker),
		},
	}
}

// ReserveDepositedEvent describes reward tokens added to the reserve.
func ReserveDepositedEvent(sender [20]byte, amount, reserve *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeReserveDeposited,
		Attributes: map[string]string{
			"sender":  accountString(sender),
			"amount":  amountString(amount),
			"reserve": amountString(reserve),
		},
	}
}

// AdminUpdatedEvent describes an accepted admin operation.
func AdminUpdatedEvent(op string, entries int) *types.Event {
	return &types.Event{
		Type: EventTypeAdminUpdated,
		Attributes: map[string]string{
			"op":      op,
			"entries": strconv.Itoa(entries),
		},
	}
}
