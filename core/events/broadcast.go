package events

import (
	"sync"

	"nftstake/core/types"
)

// Payload is implemented by events that expose their structured form.
type Payload interface {
	Event
	Event() *types.Event
}

// Record is an emitted event tagged with its position in the stream.
type Record struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Broadcaster fans emitted events out to live subscribers and keeps a bounded
// backlog so late subscribers can catch up from a cursor.
type Broadcaster struct {
	mu          sync.Mutex
	seq         uint64
	backlog     []Record
	backlogSize int
	subscribers map[uint64]chan Record
	nextSubID   uint64
}

// NewBroadcaster constructs a broadcaster retaining up to backlog records.
func NewBroadcaster(backlog int) *Broadcaster {
	if backlog <= 0 {
		backlog = 256
	}
	return &Broadcaster{
		backlogSize: backlog,
		subscribers: make(map[uint64]chan Record),
	}
}

// Emit implements Emitter. Events that do not expose a payload are dropped.
// Slow subscribers miss records rather than blocking the emitter.
func (b *Broadcaster) Emit(evt Event) {
	payload, ok := evt.(Payload)
	if !ok || payload.Event() == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	record := Record{Sequence: b.seq, Event: payload.Event()}
	b.backlog = append(b.backlog, record)
	if len(b.backlog) > b.backlogSize {
		b.backlog = b.backlog[len(b.backlog)-b.backlogSize:]
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- record:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns the backlog after the supplied
// sequence cursor together with a live channel and its cancel function.
func (b *Broadcaster) Subscribe(after uint64, buffer int) ([]Record, <-chan Record, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Record, buffer)
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = ch
	backlog := make([]Record, 0, len(b.backlog))
	for _, rec := range b.backlog {
		if rec.Sequence > after {
			backlog = append(backlog, rec)
		}
	}
	b.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return backlog, ch, cancel
}

// MultiEmitter forwards each event to every wrapped emitter.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(evt Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(evt)
		}
	}
}
