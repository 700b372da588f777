package event

import (
	"sync"

	"github.com/rs/zerolog"
)

// Notifier is what the game modes use to get notifications out. Broadcast
// goes to every observer; SendTo targets one (push feedback is private to
// the actor).
type Notifier interface {
	Broadcast(n Notification)
	SendTo(id string, n Notification)
}

// Broadcaster fans notifications out to registered observer channels.
// The observer map is mutex-guarded; callers may publish from any
// goroutine.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[string]chan Notification
	log       zerolog.Logger
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		observers: make(map[string]chan Notification),
		log:       log,
	}
}

// Register adds an observer outbox. Re-registering an id replaces (and
// closes) the previous channel.
func (b *Broadcaster) Register(id string, ch chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.observers[id]; ok {
		close(old)
	}
	b.observers[id] = ch
}

func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.observers[id]; ok {
		close(ch)
		delete(b.observers, id)
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Broadcast delivers n to every observer. A full outbox means the client
// is too slow to keep up; it gets dropped rather than stalling the loop.
func (b *Broadcaster) Broadcast(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.observers {
		select {
		case ch <- n:
		default:
			b.log.Warn().Str("observer", id).Str("event", string(n.Type)).Msg("observer outbox full, dropping client")
			close(ch)
			delete(b.observers, id)
		}
	}
}

// SendTo delivers n to a single observer, if still registered.
func (b *Broadcaster) SendTo(id string, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.observers[id]
	if !ok {
		return
	}
	select {
	case ch <- n:
	default:
		b.log.Warn().Str("observer", id).Str("event", string(n.Type)).Msg("observer outbox full, dropping client")
		close(ch)
		delete(b.observers, id)
	}
}

// Shutdown closes every outbox, telling observers no more notifications
// are coming.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.observers {
		close(ch)
		delete(b.observers, id)
	}
}
