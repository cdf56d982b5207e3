package nft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mockState struct {
	owners map[[20]byte][20]byte
}

func (m *mockState) NFTOwnerGet(item [20]byte) ([20]byte, bool, error) {
	owner, ok := m.owners[item]
	return owner, ok, nil
}

func (m *mockState) NFTOwnerPut(item [20]byte, owner [20]byte) error {
	m.owners[item] = owner
	return nil
}

func TestTransferWithForward(t *testing.T) {
	st := &mockState{owners: make(map[[20]byte][20]byte)}
	reg := NewRegistry()
	item := [20]byte{0xee}
	alice := [20]byte{0x01}
	master := [20]byte{0xa0}

	require.NoError(t, reg.Mint(st, item, alice))
	require.ErrorIs(t, reg.Mint(st, item, alice), ErrItemExists)

	_, err := reg.Transfer(st, master, item, master, 1, nil, true)
	require.ErrorIs(t, err, ErrNotOwner)

	note, err := reg.Transfer(st, alice, item, master, 9, []byte{7}, true)
	require.NoError(t, err)
	require.Equal(t, alice, note.PrevOwner)
	require.Equal(t, master, note.NewOwner)
	require.Equal(t, []byte{7}, note.Payload)
	require.Equal(t, uint64(9), note.QueryID)

	owner, err := reg.OwnerOf(st, item)
	require.NoError(t, err)
	require.Equal(t, master, owner)

	note, err = reg.Transfer(st, master, item, alice, 0, nil, false)
	require.NoError(t, err)
	require.Nil(t, note)

	_, err = reg.OwnerOf(st, [20]byte{0x99})
	require.ErrorIs(t, err, ErrItemNotFound)
}
