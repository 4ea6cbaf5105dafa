package monitor

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-connection event queue depth. A consumer that
// falls this far behind is disconnected rather than allowed to block others.
const subscriberBuffer = 32

// Subscriber is one in-process event consumer. Events arrive on C; the
// channel is closed when the subscriber is dropped or the broadcaster shuts
// down.
type Subscriber struct {
	C      chan *Event
	UserID int32

	closeOnce sync.Once
	b         *Broadcaster
}

// Close removes the subscriber and closes C.
func (s *Subscriber) Close() {
	s.b.remove(s)
}

// Broadcaster fans events out to subscribers without ever blocking the
// publisher.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a consumer bound to a user id.
func (b *Broadcaster) Subscribe(userID int32) *Subscriber {
	s := &Subscriber{
		C:      make(chan *Event, subscriberBuffer),
		UserID: userID,
		b:      b,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers ev to a snapshot of the subscriber set. A full buffer
// drops and disconnects that subscriber.
func (b *Broadcaster) Publish(ev *Event) int {
	b.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range snapshot {
		select {
		case s.C <- ev:
			delivered++
		default:
			slog.Warn("dropping slow subscriber", slog.Int("userID", int(s.UserID)))
			b.remove(s)
		}
	}
	return delivered
}

// Count returns the current subscriber count.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// CloseAll disconnects every subscriber; used at shutdown.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscriber]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.closeOnce.Do(func() { close(s.C) })
	}
}

func (b *Broadcaster) remove(s *Subscriber) {
	b.mu.Lock()
	_, present := b.subs[s]
	delete(b.subs, s)
	b.mu.Unlock()
	if present {
		s.closeOnce.Do(func() { close(s.C) })
	}
}
