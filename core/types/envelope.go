package types

import (
	"math/big"

	"github.com/google/uuid"
)

// Message is a typed payload delivered between actors. Every message kind has
// a stable opcode used on the wire.
type Message interface {
	Opcode() uint32
}

// Envelope carries one message from a sender to a destination actor. Now is
// the event timestamp assigned when the causal chain entered the system; it is
// propagated unchanged to every message the chain produces.
type Envelope struct {
	ID      uuid.UUID `json:"id"`
	QueryID uint64    `json:"queryId"`
	From    [20]byte  `json:"from"`
	To      [20]byte  `json:"to"`
	Value   *big.Int  `json:"value"`
	Now     int64     `json:"now"`
	Bounce  bool      `json:"bounce"`
	Bounced bool      `json:"bounced"`
	Body    Message   `json:"-"`
}

// AttachedValue returns the attached value, never nil.
func (e *Envelope) AttachedValue() *big.Int {
	if e == nil || e.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(e.Value)
}

// Derive builds a follow-up envelope sent by the receiver of e. The query id
// and event timestamp are inherited.
func (e *Envelope) Derive(to [20]byte, body Message, bounce bool) Envelope {
	return Envelope{
		ID:      uuid.New(),
		QueryID: e.QueryID,
		From:    e.To,
		To:      to,
		Value:   big.NewInt(0),
		Now:     e.Now,
		Bounce:  bounce,
		Body:    body,
	}
}

// BounceBack returns the envelope delivered to the sender when e fails.
func (e *Envelope) BounceBack() Envelope {
	return Envelope{
		ID:      uuid.New(),
		QueryID: e.QueryID,
		From:    e.To,
		To:      e.From,
		Value:   e.AttachedValue(),
		Now:     e.Now,
		Bounced: true,
		Body:    e.Body,
	}
}

// Effect is a side effect on an external collaborator (NFT or token
// protocol). Effects are executed only after the producing hop commits.
type Effect interface {
	EffectKind() string
}

// ItemTransfer moves ownership of an NFT item.
type ItemTransfer struct {
	Item    [20]byte
	From    [20]byte
	To      [20]byte
	QueryID uint64
}

func (ItemTransfer) EffectKind() string { return "item_transfer" }

// TokenTransfer moves fungible reward tokens between wallets.
type TokenTransfer struct {
	From    [20]byte
	To      [20]byte
	Amount  *big.Int
	QueryID uint64
}

func (TokenTransfer) EffectKind() string { return "token_transfer" }

// ValueTransfer returns attached native value, e.g. the excess over a fee.
type ValueTransfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (ValueTransfer) EffectKind() string { return "value_transfer" }

// Outcome is everything a successful hop produces besides state writes.
type Outcome struct {
	Messages []Envelope
	Effects  []Effect
	Events   []*Event
}

// Send queues an outbound message.
func (o *Outcome) Send(env Envelope) { o.Messages = append(o.Messages, env) }

// Apply queues an external effect.
func (o *Outcome) Apply(effect Effect) { o.Effects = append(o.Effects, effect) }

// Emit queues an event for emission after commit.
func (o *Outcome) Emit(evt *Event) {
	if evt != nil {
		o.Events = append(o.Events, evt)
	}
}
