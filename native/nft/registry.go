package nft

import (
	"errors"
	"fmt"
)

var (
	ErrItemExists   = errors.New("nft: item already minted")
	ErrItemNotFound = errors.New("nft: item not found")
	ErrNotOwner     = errors.New("nft: sender does not own item")
)

// State is the persistence surface required by the registry.
type State interface {
	NFTOwnerGet(item [20]byte) ([20]byte, bool, error)
	NFTOwnerPut(item [20]byte, owner [20]byte) error
}

// Notification is produced when an item moves to a new owner together with a
// forward payload. The receiving actor learns who the previous owner was.
type Notification struct {
	Item      [20]byte
	PrevOwner [20]byte
	NewOwner  [20]byte
	Payload   []byte
	QueryID   uint64
}

// Registry tracks ownership of non-fungible items.
type Registry struct{}

// NewRegistry constructs a registry.
func NewRegistry() *Registry { return &Registry{} }

// Mint records a new item owned by owner.
func (r *Registry) Mint(st State, item, owner [20]byte) error {
	if _, ok, err := st.NFTOwnerGet(item); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %x", ErrItemExists, item[:])
	}
	return st.NFTOwnerPut(item, owner)
}

// OwnerOf returns the current owner of item.
func (r *Registry) OwnerOf(st State, item [20]byte) ([20]byte, error) {
	owner, ok, err := st.NFTOwnerGet(item)
	if err != nil {
		return owner, err
	}
	if !ok {
		return owner, fmt.Errorf("%w: %x", ErrItemNotFound, item[:])
	}
	return owner, nil
}

// Transfer moves item from its current owner to to. When forward is true the
// returned notification must be delivered to the new owner.
func (r *Registry) Transfer(st State, sender, item, to [20]byte, queryID uint64, payload []byte, forward bool) (*Notification, error) {
	owner, err := r.OwnerOf(st, item)
	if err != nil {
		return nil, err
	}
	if owner != sender {
		return nil, ErrNotOwner
	}
	if err := st.NFTOwnerPut(item, to); err != nil {
		return nil, err
	}
	if !forward {
		return nil, nil
	}
	return &Notification{
		Item:      item,
		PrevOwner: owner,
		NewOwner:  to,
		Payload:   append([]byte(nil), payload...),
		QueryID:   queryID,
	}, nil
}
