package bank

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrMintUnauthorized    = errors.New("bank: caller is not the token minter")
)

// Asset selects which balance a ledger operation touches.
type Asset uint8

const (
	// AssetToken is the fungible reward token paid out by the master.
	AssetToken Asset = iota
	// AssetNative is the value attached to messages for fees.
	AssetNative
)

func (a Asset) String() string {
	if a == AssetNative {
		return "native"
	}
	return "token"
}

// State is the persistence surface required by the ledger.
type State interface {
	BankBalanceGet(asset Asset, addr [20]byte) (*big.Int, error)
	BankBalancePut(asset Asset, addr [20]byte, amount *big.Int) error
	BankSupplyGet() (*big.Int, error)
	BankSupplyPut(amount *big.Int) error
}

// Ledger moves balances between accounts. It holds no state of its own.
type Ledger struct {
	minter [20]byte
}

// NewLedger constructs a ledger whose reward token can only be minted by minter.
func NewLedger(minter [20]byte) *Ledger {
	return &Ledger{minter: minter}
}

// Balance returns the balance of addr for asset.
func (l *Ledger) Balance(st State, asset Asset, addr [20]byte) (*big.Int, error) {
	bal, err := st.BankBalanceGet(asset, addr)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return bal, nil
}

// Mint credits freshly issued reward tokens to addr.
func (l *Ledger) Mint(st State, caller, to [20]byte, amount *big.Int) error {
	if caller != l.minter {
		return ErrMintUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := l.Balance(st, AssetToken, to)
	if err != nil {
		return err
	}
	supply, err := st.BankSupplyGet()
	if err != nil {
		return err
	}
	if supply == nil {
		supply = big.NewInt(0)
	}
	if err := st.BankBalancePut(AssetToken, to, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	return st.BankSupplyPut(new(big.Int).Add(supply, amount))
}

// Credit adds native value to addr without a debit, used to fund accounts at
// genesis.
func (l *Ledger) Credit(st State, asset Asset, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := l.Balance(st, asset, to)
	if err != nil {
		return err
	}
	return st.BankBalancePut(asset, to, new(big.Int).Add(bal, amount))
}

// Transfer debits from and credits to. Self transfers are a no-op once the
// balance check passes.
func (l *Ledger) Transfer(st State, asset Asset, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBal, err := l.Balance(st, asset, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s %s has %s, needs %s", ErrInsufficientBalance, asset, hexAddr(from), fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.Balance(st, asset, to)
	if err != nil {
		return err
	}
	if err := st.BankBalancePut(asset, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return st.BankBalancePut(asset, to, new(big.Int).Add(toBal, amount))
}

func hexAddr(addr [20]byte) string { return fmt.Sprintf("0x%x", addr[:]) }
