package events

// Event is anything the node can emit after a committed delivery.
type Event interface {
	EventType() string
}

// Emitter receives events once the transaction that produced them committed.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
