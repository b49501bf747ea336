// Package transport holds what every Transport implementation shares: per category observer lists.
package transport

import (
	"live-chat/contract"
	"live-chat/domain"
	"log/slog"
	"slices"
	"sync"
)

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Observers is an ordered list of callbacks for one notification category.
// A panicking callback is logged and does not prevent delivery to the others.
type Observers[T any] struct {
	mu      sync.Mutex
	log     *slog.Logger
	name    string
	next    uint64
	entries []entry[T]
}

func NewObservers[T any](log *slog.Logger, name string) *Observers[T] {
	return &Observers[T]{log: log, name: name}
}

// Add registers fn and returns its own unsubscribe function.
func (o *Observers[T]) Add(fn func(T)) contract.Unsubscribe {
	if fn == nil {
		return func() {}
	}
	o.mu.Lock()
	o.next++
	id := o.next
	o.entries = append(o.entries, entry[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.entries = slices.DeleteFunc(o.entries, func(e entry[T]) bool { return e.id == id })
		})
	}
}

// Notify calls every observer registered at call time, in registration order.
// The lock is not held during callbacks so an observer may unsubscribe itself.
func (o *Observers[T]) Notify(value T) {
	o.mu.Lock()
	entries := slices.Clone(o.entries)
	o.mu.Unlock()

	for _, e := range entries {
		o.call(e.fn, value)
	}
}

func (o *Observers[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

func (o *Observers[T]) call(fn func(T), value T) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Observer panicked", "category", o.name, "panic", r)
		}
	}()
	fn(value)
}

// Notifier bundles the four observer categories of contract.Transport.
// Implementations embed it to get the On* registration methods.
type Notifier struct {
	snapshots   *Observers[[]domain.Message]
	messages    *Observers[domain.Message]
	connections *Observers[bool]
	errors      *Observers[error]
}

func NewNotifier(log *slog.Logger) *Notifier {
	return &Notifier{
		snapshots:   NewObservers[[]domain.Message](log, "snapshot"),
		messages:    NewObservers[domain.Message](log, "message"),
		connections: NewObservers[bool](log, "connection"),
		errors:      NewObservers[error](log, "error"),
	}
}

func (n *Notifier) OnSnapshot(fn func([]domain.Message)) contract.Unsubscribe {
	return n.snapshots.Add(fn)
}

func (n *Notifier) OnMessage(fn func(domain.Message)) contract.Unsubscribe {
	return n.messages.Add(fn)
}

func (n *Notifier) OnConnectionChange(fn func(connected bool)) contract.Unsubscribe {
	return n.connections.Add(fn)
}

func (n *Notifier) OnError(fn func(error)) contract.Unsubscribe {
	return n.errors.Add(fn)
}

// NotifySnapshot hands observers a copy of messages, oldest first.
func (n *Notifier) NotifySnapshot(messages []domain.Message) {
	if messages == nil {
		messages = []domain.Message{}
	}
	n.snapshots.Notify(slices.Clone(messages))
}

func (n *Notifier) NotifyMessage(message domain.Message) {
	n.messages.Notify(message)
}

func (n *Notifier) NotifyConnection(connected bool) {
	n.connections.Notify(connected)
}

func (n *Notifier) NotifyError(err error) {
	n.errors.Notify(err)
}
