package runtime

import (
	"live-chat/domain"
	"live-chat/domain/event"
	"sync"
)

// Subscription is one subscriber endpoint of a Channel.
// Its queue is bounded: the channel never blocks on it and evicts the subscriber instead.
type Subscription struct {
	id        string
	channelID domain.ChannelID
	identity  domain.Identity
	events    chan event.ChannelEvent
	leave     func(*Subscription)
	closeOnce sync.Once

	// guarded by the owning channel mutex
	closed bool

	mu  sync.Mutex
	err error
}

func newSubscription(id string, channelID domain.ChannelID, identity domain.Identity,
	queueSize int, leave func(*Subscription)) *Subscription {
	return &Subscription{
		id:        id,
		channelID: channelID,
		identity:  identity,
		events:    make(chan event.ChannelEvent, queueSize),
		leave:     leave,
	}
}

func (s *Subscription) ID() string { return s.id }
func (s *Subscription) Channel() domain.ChannelID { return s.channelID }
func (s *Subscription) Identity() domain.Identity { return s.identity }
func (s *Subscription) Events() <-chan event.ChannelEvent { return s.events }

// Err returns why the subscription ended. Nil while active or after a voluntary Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close leaves the channel. Events already queued stay readable until the queue is drained.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.leave(s)
	})
}

// offer enqueues without blocking. Caller holds the channel mutex.
func (s *Subscription) offer(e event.ChannelEvent) bool {
	if s.closed {
		return false
	}
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// terminate closes the queue once. Caller holds the channel mutex.
func (s *Subscription) terminate(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.events)
}
