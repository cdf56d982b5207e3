package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// AccountPrefix marks user and admin accounts as well as actor addresses.
	AccountPrefix AddressPrefix = "stk"
	// ItemPrefix marks NFT item addresses.
	ItemPrefix AddressPrefix = "nft"
)

// ErrWrongPrefix is returned when an address decodes under another prefix
// than the caller requires.
var ErrWrongPrefix = errors.New("crypto: unexpected address prefix")

// Address is a 20-byte identity together with the prefix it is shown under.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

// FromRaw wraps a raw identity.
func FromRaw(prefix AddressPrefix, raw [20]byte) Address {
	return Address{prefix: prefix, raw: raw}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	// Fixed 20-byte payloads under the package prefixes always fit bech32.
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Raw returns the identity without its prefix.
func (a Address) Raw() [20]byte { return a.raw }

// DecodeAddress parses a bech32 address of any prefix.
func DecodeAddress(s string) (Address, error) {
	prefix, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: decode %q: %w", s, err)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: regroup %q: %w", s, err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("crypto: %q holds %d bytes, want 20", s, len(conv))
	}
	var raw [20]byte
	copy(raw[:], conv)
	return FromRaw(AddressPrefix(prefix), raw), nil
}

// ParseRaw decodes a bech32 string into its raw identity, ignoring the prefix.
func ParseRaw(s string) ([20]byte, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.raw, nil
}

// ParseAccount decodes s and requires the account prefix.
func ParseAccount(s string) ([20]byte, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.prefix != AccountPrefix {
		return [20]byte{}, fmt.Errorf("%w: want %s, got %s", ErrWrongPrefix, AccountPrefix, addr.prefix)
	}
	return addr.raw, nil
}

// PrivateKey is a secp256k1 key controlling an account address.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() Address {
	return FromRaw(AccountPrefix, crypto.PubkeyToAddress(k.PublicKey))
}

// DeriveAddress returns a deterministic account address for label under base.
func DeriveAddress(label string, base [20]byte) [20]byte {
	hash := crypto.Keccak256([]byte(label), base[:])
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}
