package types

// Event is a staking event recorded in a delivery trace. Attribute values
// are bech32 addresses or base-10 amounts.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
