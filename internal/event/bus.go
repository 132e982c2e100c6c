package event

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const DefaultBuffer = 256

// Publisher is the emitting side of the bus. Engines depend on this only.
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to subscribers.
//
// Publish never blocks. Each subscriber owns a bounded buffer; a subscriber
// that falls a full buffer behind is disconnected (its channel is closed)
// rather than having events dropped from the middle of its stream.
type Bus interface {
	Publisher
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

type memBus struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewBus(log zerolog.Logger) Bus {
	return &memBus{
		log:  log.With().Str("component", "eventbus").Logger(),
		subs: map[uint64]*subscriber{},
	}
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			b.log.Warn().Uint64("subscriber", id).Str("event", string(e.Type)).
				Msg("subscriber buffer full, disconnecting")
			delete(b.subs, id)
			sub.close()
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	id := b.seq.Inc()

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, unsub
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}
