package progress

import (
	"context"
	"sync"
)

// subChanCapacity bounds how far a slow subscriber can fall behind before
// it is marked lagged and resynced to the tracker's latest value instead
// of replaying a backlog.
const subChanCapacity = 1024

// Tracker fans one stream of events out to any number of subscribers and
// remembers the latest event sent, so a subscriber that falls behind and
// gets marked lagged can resync to current state instead of replaying
// history. A subscriber receives only events sent after it subscribed.
type Tracker[T any] struct {
	mu      sync.Mutex
	latest  T
	subs    map[int]*subscriber[T]
	nextSub int
}

type subscriber[T any] struct {
	ch     chan T
	lagged bool
}

// NewTracker creates a Tracker seeded with an initial value, which stands
// as the latest value until the first Send.
func NewTracker[T any](init T) *Tracker[T] {
	return &Tracker[T]{latest: init, subs: make(map[int]*subscriber[T])}
}

// Send records event as the latest value and delivers it to every live
// subscriber. A subscriber whose buffer is full is marked lagged rather
// than blocking the sender.
func (t *Tracker[T]) Send(event T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = event
	for _, s := range t.subs {
		select {
		case s.ch <- event:
		default:
			s.lagged = true
		}
	}
}

// Subscription is one listener's view of a Tracker's stream.
type Subscription[T any] struct {
	tracker *Tracker[T]
	id      int
	sub     *subscriber[T]
}

// Subscribe opens a new Subscription. Close it when done to free the
// tracker's bookkeeping.
func (t *Tracker[T]) Subscribe() *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	sub := &subscriber[T]{ch: make(chan T, subChanCapacity)}
	t.subs[id] = sub
	return &Subscription[T]{tracker: t, id: id, sub: sub}
}

// Recv waits for the next event. If this subscription fell behind and was
// marked lagged, Recv skips the backlog and returns the tracker's current
// latest value immediately, mirroring a broadcast channel's resubscribe
// behavior on an overflow error. Recv returns ok=false if ctx is done or
// the subscription was closed.
func (s *Subscription[T]) Recv(ctx context.Context) (event T, ok bool) {
	s.tracker.mu.Lock()
	lagged := s.sub.lagged
	if lagged {
		s.sub.lagged = false
		drain(s.sub.ch)
		latest := s.tracker.latest
		s.tracker.mu.Unlock()
		return latest, true
	}
	s.tracker.mu.Unlock()

	select {
	case event, ok = <-s.sub.ch:
		return event, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Close removes the subscription from its tracker. Further Recv calls
// return ok=false.
func (s *Subscription[T]) Close() {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()
	delete(s.tracker.subs, s.id)
	close(s.sub.ch)
}
