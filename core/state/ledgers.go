package state

import (
	"math/big"

	"nftstake/native/bank"
	"nftstake/native/nft"
)

func bankKey(asset bank.Asset, addr [20]byte) []byte {
	if asset == bank.AssetNative {
		return addrKey(bankNativePrefix, addr)
	}
	return addrKey(bankTokenPrefix, addr)
}

func (tx *Tx) BankBalanceGet(asset bank.Asset, addr [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := tx.KVGet(bankKey(asset, addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (tx *Tx) BankBalancePut(asset bank.Asset, addr [20]byte, amount *big.Int) error {
	return tx.KVPut(bankKey(asset, addr), bigOrZero(amount))
}

func (tx *Tx) BankSupplyGet() (*big.Int, error) {
	amount := new(big.Int)
	ok, err := tx.KVGet(bankTokenSupplyKey, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (tx *Tx) BankSupplyPut(amount *big.Int) error {
	return tx.KVPut(bankTokenSupplyKey, bigOrZero(amount))
}

func (tx *Tx) NFTOwnerGet(item [20]byte) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := tx.KVGet(addrKey(nftOwnerPrefix, item), &owner)
	return owner, ok, err
}

func (tx *Tx) NFTOwnerPut(item [20]byte, owner [20]byte) error {
	return tx.KVPut(addrKey(nftOwnerPrefix, item), owner)
}

// NFTOwnedBy lists the items owned by owner in key order.
func (tx *Tx) NFTOwnedBy(owner [20]byte) ([][20]byte, error) {
	out := make([][20]byte, 0)
	err := tx.iterateDecoded(nftOwnerPrefix, func(key []byte, decode func(interface{}) error) error {
		item, ok := addrSuffix(nftOwnerPrefix, key)
		if !ok {
			return nil
		}
		var current [20]byte
		if err := decode(&current); err != nil {
			return err
		}
		if current == owner {
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

var (
	_ bank.State = (*Tx)(nil)
	_ nft.State  = (*Tx)(nil)
)
