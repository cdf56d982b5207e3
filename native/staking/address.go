package staking

import "lukechampine.com/blake3"

// HelperAddress derives the deterministic helper address of an item from the
// helper template, the master address and the item identity.
func HelperAddress(template [32]byte, master [20]byte, item [20]byte) [20]byte {
	buf := make([]byte, 0, len(template)+len(master)+len(item))
	buf = append(buf, template[:]...)
	buf = append(buf, master[:]...)
	buf = append(buf, item[:]...)
	sum := blake3.Sum256(buf)
	var out [20]byte
	copy(out[:], sum[12:])
	return out
}

// HelperAddressOf derives the helper address using the master configuration.
func (c *Config) HelperAddressOf(item [20]byte) [20]byte {
	return HelperAddress(c.HelperTemplate, c.Address, item)
}
