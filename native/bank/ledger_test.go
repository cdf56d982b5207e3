package bank

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockState struct {
	balances map[Asset]map[[20]byte]*big.Int
	supply   *big.Int
}

func newMockState() *mockState {
	return &mockState{balances: map[Asset]map[[20]byte]*big.Int{
		AssetToken:  {},
		AssetNative: {},
	}}
}

func (m *mockState) BankBalanceGet(asset Asset, addr [20]byte) (*big.Int, error) {
	if bal, ok := m.balances[asset][addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return nil, nil
}

func (m *mockState) BankBalancePut(asset Asset, addr [20]byte, amount *big.Int) error {
	m.balances[asset][addr] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) BankSupplyGet() (*big.Int, error) { return m.supply, nil }

func (m *mockState) BankSupplyPut(amount *big.Int) error {
	m.supply = new(big.Int).Set(amount)
	return nil
}

func TestMintAndTransfer(t *testing.T) {
	minter := [20]byte{1}
	alice := [20]byte{2}
	bob := [20]byte{3}
	st := newMockState()
	ledger := NewLedger(minter)

	require.ErrorIs(t, ledger.Mint(st, alice, alice, big.NewInt(5)), ErrMintUnauthorized)
	require.NoError(t, ledger.Mint(st, minter, alice, big.NewInt(100)))
	require.Equal(t, "100", st.supply.String())

	require.NoError(t, ledger.Transfer(st, AssetToken, alice, bob, big.NewInt(40)))
	bal, err := ledger.Balance(st, AssetToken, alice)
	require.NoError(t, err)
	require.Equal(t, "60", bal.String())
	bal, err = ledger.Balance(st, AssetToken, bob)
	require.NoError(t, err)
	require.Equal(t, "40", bal.String())

	err = ledger.Transfer(st, AssetToken, bob, alice, big.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.ErrorIs(t, ledger.Transfer(st, AssetToken, bob, alice, big.NewInt(0)), ErrInvalidAmount)
}

func TestNativeBalancesSeparateFromToken(t *testing.T) {
	alice := [20]byte{2}
	st := newMockState()
	ledger := NewLedger([20]byte{1})
	require.NoError(t, ledger.Credit(st, AssetNative, alice, big.NewInt(9)))

	bal, err := ledger.Balance(st, AssetToken, alice)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
	bal, err = ledger.Balance(st, AssetNative, alice)
	require.NoError(t, err)
	require.Equal(t, "9", bal.String())
}
