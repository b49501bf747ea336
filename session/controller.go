// Package session binds one consumer to a transport: it connects when enabled,
// keeps the locally observed messages newest-first and exposes a minimal send/observe API.
package session

import (
	"context"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/domain/event"
	"live-chat/errors"
	"live-chat/projection"
	"log/slog"
	"strings"
	"sync"
)

// Params is what the owner reconciles the controller against.
// Enabled means the external entitlement checks already passed.
type Params struct {
	ChannelID     domain.ChannelID
	IdentityToken string
	Enabled       bool
}

func (p Params) ready() bool {
	return p.Enabled && !p.ChannelID.IsZero() && strings.TrimSpace(p.IdentityToken) != ""
}

// View is everything the rendering layer reads, captured atomically.
type View struct {
	Messages  []domain.Message // newest first
	Connected bool
	Err       error
	State     domain.ConnectionState
}

type TransportFactory func() contract.Transport

type Option func(*Controller)

// WithTransport injects a transport owned by the caller: the controller never disconnects it.
func WithTransport(t contract.Transport) Option {
	return func(c *Controller) {
		c.injected = t
	}
}

// WithTransportFactory lets the controller build, and therefore own, one transport per session.
func WithTransportFactory(factory TransportFactory) Option {
	return func(c *Controller) {
		c.factory = factory
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithOnChange registers a callback receiving the new View after every local state change.
// It runs on the notifying goroutine, without the controller lock held.
func WithOnChange(fn func(View)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

type Controller struct {
	log      *slog.Logger
	injected contract.Transport
	factory  TransportFactory
	onChange func(View)

	mu           sync.Mutex
	params       Params
	transport    contract.Transport
	owned        bool
	unsubscribes []contract.Unsubscribe
	generation   uint64
	timeline     *projection.Timeline
	connected    bool
	err          error
	state        domain.ConnectionState
	closed       bool
}

func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		log:      slog.Default(),
		timeline: projection.NewTimeline(),
		state:    domain.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.injected == nil && c.factory == nil {
		return nil, errors.ErrMissingTransport
	}
	return c, nil
}

// Update reconciles the session with p. A channel or token change tears the current
// session down, resets the local messages, then connects again.
// The returned error is the connect failure, which is also kept as the latest error.
func (c *Controller) Update(ctx context.Context, p Params) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	previous := c.params
	c.params = p
	active := c.transport != nil
	if active && p.ready() && previous.ChannelID == p.ChannelID && previous.IdentityToken == p.IdentityToken {
		c.mu.Unlock()
		return nil
	}
	release := c.teardownLocked(domain.StateIdle)
	c.mu.Unlock()
	release()

	if !p.ready() {
		c.changed()
		return nil
	}
	return c.connect(ctx)
}

// Reconnect is the explicit recovery after a spontaneous disconnect or an error.
// The controller never reconnects by itself.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || !c.params.ready() {
		c.mu.Unlock()
		return nil
	}
	if c.transport == nil {
		c.mu.Unlock()
		return c.connect(ctx)
	}
	transport, params, generation := c.transport, c.params, c.generation
	c.state = domain.StateConnecting
	c.mu.Unlock()
	c.changed()

	return c.dial(ctx, transport, params, generation)
}

// SendMessage delegates to the transport. Nothing is inserted locally:
// the message shows up when the channel echoes it back.
func (c *Controller) SendMessage(ctx context.Context, text string) (domain.Message, error) {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return domain.Message{}, errors.ErrNotConnected
	}
	return transport.SendMessage(ctx, text)
}

// Close tears the session down for good.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	release := c.teardownLocked(domain.StateDisconnected)
	c.mu.Unlock()
	release()
	c.changed()
}

func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Messages()
}

func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	return View{
		Messages:  c.timeline.Messages(),
		Connected: c.connected,
		Err:       c.err,
		State:     c.state,
	}
}

// connect starts a new session: observers first, then Connect, so a synchronous snapshot is never missed.
func (c *Controller) connect(ctx context.Context) error {
	c.mu.Lock()
	transport, owned := c.injected, false
	if transport == nil {
		transport, owned = c.factory(), true
	}
	c.generation++
	generation := c.generation
	c.transport = transport
	c.owned = owned
	c.unsubscribes = []contract.Unsubscribe{
		transport.OnSnapshot(func(messages []domain.Message) {
			c.apply(generation, func() { c.timeline.Consume(event.Snapshot{Messages: messages}) })
		}),
		transport.OnMessage(func(message domain.Message) {
			c.apply(generation, func() { c.timeline.Consume(event.MessageAppended{Message: message}) })
		}),
		transport.OnConnectionChange(func(connected bool) {
			c.apply(generation, func() { c.onConnection(connected) })
		}),
		transport.OnError(func(err error) {
			c.apply(generation, func() { c.onError(err) })
		}),
	}
	c.state = domain.StateConnecting
	params := c.params
	c.mu.Unlock()
	c.changed()

	c.log.Debug("Connecting session", "channel_id", params.ChannelID.String(), "owned_transport", owned)
	return c.dial(ctx, transport, params, generation)
}

func (c *Controller) dial(ctx context.Context, transport contract.Transport, params Params, generation uint64) error {
	err := transport.Connect(ctx, params.ChannelID, params.IdentityToken)
	if err == nil {
		// an already connected transport answers with a snapshot only, mirror its state
		live := transport.Connected()
		c.apply(generation, func() {
			if live && (!c.connected || c.state != domain.StateConnected) {
				c.onConnection(true)
			}
		})
		return nil
	}
	// the transport normally notified it already, keep it even if it did not
	c.apply(generation, func() {
		if c.err == nil {
			c.onError(err)
		}
	})
	return err
}

func (c *Controller) onConnection(connected bool) {
	c.connected = connected
	switch {
	case connected:
		c.err = nil
		c.state = domain.StateConnected
	case c.state != domain.StateError:
		c.state = domain.StateDisconnected
	}
}

func (c *Controller) onError(err error) {
	c.err = err
	c.state = domain.StateError
	c.log.Debug("Session error", "channel_id", c.params.ChannelID.String(), "error", err)
}

// apply runs fn under the lock unless generation belongs to a session already torn down.
func (c *Controller) apply(generation uint64, fn func()) {
	c.mu.Lock()
	if generation != c.generation || c.transport == nil {
		c.mu.Unlock()
		return
	}
	fn()
	c.mu.Unlock()
	c.changed()
}

// teardownLocked unsubscribes the four streams and resets the local state.
// The returned function disconnects an owned transport and must run without the lock.
func (c *Controller) teardownLocked(next domain.ConnectionState) func() {
	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	c.unsubscribes = nil
	c.generation++
	transport, owned := c.transport, c.owned
	c.transport = nil
	c.owned = false
	c.timeline.Reset()
	c.connected = false
	c.err = nil
	c.state = next

	if transport == nil || !owned {
		return func() {}
	}
	return transport.Disconnect
}

func (c *Controller) changed() {
	if c.onChange == nil {
		return
	}
	c.mu.Lock()
	view := c.viewLocked()
	c.mu.Unlock()
	c.onChange(view)
}
