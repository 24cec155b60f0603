package service

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/models"
)

// EventBus fans session events out to subscribers. Emit never blocks: a
// subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan models.SessionEvent
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[uint64]chan models.SessionEvent)}
}

// Subscribe returns a buffered event channel and a cancel func that closes it.
func (b *EventBus) Subscribe(buffer int) (<-chan models.SessionEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.SessionEvent, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *EventBus) Emit(event models.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			log.Warn().Uint64("subscriber", id).Str("event", string(event.Type)).Msg("Dropping session event for slow subscriber")
		}
	}
}

// Close closes every subscriber channel.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
