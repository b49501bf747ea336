// Package memory is an in-process Transport used to exercise multi-subscriber behavior
// deterministically, without network I/O.
package memory

import (
	"live-chat/domain"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Registry holds every in-process channel: its log and its connected instances.
// Tests inject their own Registry or call Reset between cases.
type Registry struct {
	mu       sync.Mutex
	channels map[domain.ChannelID]*channel
	now      func() time.Time
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used when none is injected.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[domain.ChannelID]*channel),
		now:      time.Now,
	}
}

// Reset drops every channel and disconnects every instance.
func (r *Registry) Reset() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[domain.ChannelID]*channel)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.mu.Lock()
		instances := ch.instances
		ch.instances = nil
		ch.mu.Unlock()
		for _, t := range instances {
			if t.drop(ch) {
				t.NotifyConnection(false)
			}
		}
	}
}

// Messages returns the log of a channel, oldest first.
func (r *Registry) Messages(channelID domain.ChannelID) []domain.Message {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	r.mu.Unlock()
	if !ok {
		return []domain.Message{}
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return slices.Clone(ch.log)
}

// Subscribers returns the number of instances connected to a channel.
func (r *Registry) Subscribers(channelID domain.ChannelID) int {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.instances)
}

func (r *Registry) channel(channelID domain.ChannelID) *channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID]
	if !ok {
		ch = &channel{id: channelID, now: r.now}
		r.channels[channelID] = ch
	}
	return ch
}

// channel serializes joins and appends with delivery: whoever holds delivery owns
// the next slot of the channel order, so snapshot and messages never interleave.
type channel struct {
	id       domain.ChannelID
	now      func() time.Time
	delivery sync.Mutex

	mu        sync.Mutex
	sequence  uint64
	log       []domain.Message
	instances []*Transport
}

// join registers t and returns the log at that instant. Caller holds delivery.
func (c *channel) join(t *Transport) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = append(c.instances, t)
	return slices.Clone(c.log)
}

// snapshot returns the log. Caller holds delivery.
func (c *channel) snapshot() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.log)
}

func (c *channel) leave(t *Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = slices.DeleteFunc(c.instances, func(i *Transport) bool { return i == t })
}

// append assigns id, sequence and timestamp. Caller holds delivery.
func (c *channel) append(displayName, text string) (domain.Message, []*Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence++
	message := domain.Message{
		ID:          ulid.Make().String(),
		Sequence:    c.sequence,
		ChannelID:   c.id,
		DisplayName: displayName,
		Text:        text,
		CreatedAt:   c.now().UTC(),
	}
	c.log = append(c.log, message)
	return message, slices.Clone(c.instances)
}
