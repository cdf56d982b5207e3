package staking

import (
	"errors"

	coreerrors "nftstake/core/errors"
)

// Exit codes reported for failed messages.
const (
	CodeUnauthorized    = 701
	CodeNotStaked       = 702
	CodeLockNotElapsed  = 703
	CodeInsufficientFee = 704
	CodeClaimPending    = 705
	CodeReserveDepleted = 706
	CodeAlreadyStaked   = 707
)

var (
	ErrUnauthorized    = coreerrors.New(CodeUnauthorized, "staking: sender not authorized")
	ErrNotStaked       = coreerrors.New(CodeNotStaked, "staking: item not staked")
	ErrLockNotElapsed  = coreerrors.New(CodeLockNotElapsed, "staking: lock period not elapsed")
	ErrInsufficientFee = coreerrors.New(CodeInsufficientFee, "staking: attached fee below minimum")
	ErrClaimPending    = coreerrors.New(CodeClaimPending, "staking: claim already in flight")
	ErrReserveDepleted = coreerrors.New(CodeReserveDepleted, "staking: reward reserve depleted")
	ErrAlreadyStaked   = coreerrors.New(CodeAlreadyStaked, "staking: item already staked")
	ErrItemNotHeld     = coreerrors.New(CodeUnauthorized, "staking: master does not hold item")

	ErrInvalidMessage = coreerrors.ErrInvalidMessage
	ErrUnknownOp      = coreerrors.ErrUnknownOp

	// ErrItemNotFound is returned by read queries for items outside the catalog.
	ErrItemNotFound = errors.New("staking: item not in catalog")

	errNilState      = errors.New("staking: state not configured")
	errConfigMissing = errors.New("staking: master config missing")
)
