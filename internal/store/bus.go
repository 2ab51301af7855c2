package store

import (
	"sync"
	"time"
)

// Origin tells subscribers who caused a change.
type Origin string

const (
	// OriginLocal is a user edit in this process.
	OriginLocal Origin = "local"
	// OriginSync is a write applied by the sync engine (pull or merge).
	OriginSync Origin = "sync"
	// OriginImport is a write applied by a file import.
	OriginImport Origin = "import"
	// OriginReset is a write applied by a recurring or daily reset.
	OriginReset Origin = "reset"
)

// Change describes one dataset write or removal.
type Change struct {
	Key     string    `json:"key"`
	Removed bool      `json:"removed,omitempty"`
	Origin  Origin    `json:"origin"`
	At      time.Time `json:"at"`
}

// Bus fans changes out to in-process subscribers. Only subscribers in the
// same process are notified.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Change]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Change]struct{})}
}

// Publish delivers c to every subscriber without blocking. Delivery is best
// effort: a subscriber whose buffer is full misses c. Consumers act on the
// full snapshot, so any later delivered change still brings them up to date.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
			// subscriber is behind; drop to avoid blocking writes
		}
	}
	b.mu.RUnlock()
}

// Subscribe returns a buffered channel that receives all new changes.
func (b *Bus) Subscribe() chan Change {
	ch := make(chan Change, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Change) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
