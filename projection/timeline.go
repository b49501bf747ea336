// Package projection builds local timelines from observed events.
// Handles ordering and deduplication.
// Does not emit events or interact with UI directly.
package projection

import (
	"live-chat/domain"
	"live-chat/domain/event"
	"slices"
)

// Timeline is a newest-first view of one channel. It is not safe for concurrent use.
type Timeline struct {
	messages []domain.Message
	seen     map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]struct{})}
}

func (t *Timeline) Consume(e event.ChannelEvent) {
	switch evt := e.(type) {
	case event.Snapshot:
		t.Replace(evt.Messages)
	case event.MessageAppended:
		t.Prepend(evt.Message)
	}
}

// Replace swaps the whole view for a snapshot given oldest first.
func (t *Timeline) Replace(snapshot []domain.Message) {
	t.messages = domain.NewestFirst(snapshot)
	t.seen = make(map[string]struct{}, len(snapshot))
	for _, m := range snapshot {
		t.seen[m.ID] = struct{}{}
	}
}

// Prepend puts message in front. A message already seen is ignored.
func (t *Timeline) Prepend(message domain.Message) {
	if _, ok := t.seen[message.ID]; ok {
		return
	}
	t.seen[message.ID] = struct{}{}
	t.messages = slices.Insert(t.messages, 0, message)
}

func (t *Timeline) Reset() {
	t.messages = nil
	t.seen = make(map[string]struct{})
}

// Messages returns a copy, newest first.
func (t *Timeline) Messages() []domain.Message {
	if t.messages == nil {
		return []domain.Message{}
	}
	return slices.Clone(t.messages)
}

func (t *Timeline) Len() int {
	return len(t.messages)
}
