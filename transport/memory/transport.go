package memory

import (
	"context"
	"fmt"
	"live-chat/auth"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/transport"
	"log/slog"
	"sync"
	"time"
)

var _ contract.Transport = (*Transport)(nil)

// Transport is the in-process implementation of contract.Transport.
// Notifications are delivered synchronously on the goroutine that caused them,
// so observers must not call Connect, Disconnect or SendMessage on the same channel.
// Connecting again with the same arguments keeps the subscription and delivers a fresh snapshot.
type Transport struct {
	*transport.Notifier
	log      *slog.Logger
	registry *Registry
	resolver contract.IdentityResolver
	latency  time.Duration

	// serializes Connect calls of this instance
	connectMu sync.Mutex

	mu        sync.Mutex
	ch        *channel
	channelID domain.ChannelID
	token     string
	identity  domain.Identity
}

type Option func(*Transport)

// WithRegistry isolates the instance in a registry other than the process-wide one.
func WithRegistry(registry *Registry) Option {
	return func(t *Transport) {
		t.registry = registry
	}
}

// WithLatency delays Connect and SendMessage to mimic a network round trip.
func WithLatency(latency time.Duration) Option {
	return func(t *Transport) {
		t.latency = latency
	}
}

// WithResolver replaces the default resolver, which uses the token as display name.
func WithResolver(resolver contract.IdentityResolver) Option {
	return func(t *Transport) {
		t.resolver = resolver
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		log:      slog.Default(),
		registry: defaultRegistry,
		resolver: auth.NewStaticResolver(nil),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Notifier = transport.NewNotifier(t.log)
	return t
}

func (t *Transport) Connect(ctx context.Context, channelID domain.ChannelID, identityToken string) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	t.mu.Lock()
	current := t.ch
	same := current != nil && t.channelID == channelID && t.token == identityToken
	t.mu.Unlock()
	if same && t.resend(current) {
		return nil
	}

	// different arguments: the previous subscription goes first
	t.Disconnect()

	if err := t.wait(ctx); err != nil {
		return t.fail(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))
	}
	if channelID.IsZero() {
		return t.fail(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, errors.ErrChannelRequired))
	}
	identity, err := t.resolver.Resolve(ctx, identityToken)
	if err != nil {
		return t.fail(fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))
	}

	ch := t.registry.channel(channelID)
	ch.delivery.Lock()
	defer ch.delivery.Unlock()

	snapshot := ch.join(t)
	t.mu.Lock()
	t.ch = ch
	t.channelID = channelID
	t.token = identityToken
	t.identity = identity
	t.mu.Unlock()

	t.log.Debug("Connected to in-memory channel", "channel_id", channelID.String(), "snapshot_size", len(snapshot))
	t.NotifyConnection(true)
	t.NotifySnapshot(snapshot)
	return nil
}

// Disconnect leaves the channel. Other instances are not affected.
// It waits for an in-flight delivery on the channel, so no message is notified once it returned.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return
	}
	ch.delivery.Lock()
	defer ch.delivery.Unlock()
	ch.leave(t)
	if t.drop(ch) {
		t.NotifyConnection(false)
	}
}

func (t *Transport) SendMessage(ctx context.Context, text string) (domain.Message, error) {
	t.mu.Lock()
	ch, identity := t.ch, t.identity
	t.mu.Unlock()
	if ch == nil {
		return domain.Message{}, errors.ErrNotConnected
	}

	if err := t.wait(ctx); err != nil {
		return domain.Message{}, err
	}

	ch.delivery.Lock()
	defer ch.delivery.Unlock()

	// disconnected while waiting: nothing was accepted
	if !t.connectedTo(ch) {
		return domain.Message{}, errors.ErrNotConnected
	}

	message, recipients := ch.append(identity.DisplayName, text)
	for _, recipient := range recipients {
		if recipient.connectedTo(ch) {
			recipient.NotifyMessage(message)
		}
	}
	return message, nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch != nil
}

// SimulateDisconnect drops the instance from its channel as an unexpected loss would.
func (t *Transport) SimulateDisconnect() {
	t.Disconnect()
}

// SimulateError disconnects the instance and notifies an error whose text is message.
func (t *Transport) SimulateError(message string) {
	t.Disconnect()
	t.NotifyError(errors.Failure(errors.ErrTransport, message))
}

// resend delivers the current log of ch as a new snapshot, without a second subscription.
// It reports false when t left ch in the meantime.
func (t *Transport) resend(ch *channel) bool {
	ch.delivery.Lock()
	defer ch.delivery.Unlock()
	if !t.connectedTo(ch) {
		return false
	}
	t.NotifySnapshot(ch.snapshot())
	return true
}

// drop clears the connection state if t is still attached to ch.
// It reports whether a transition happened.
func (t *Transport) drop(ch *channel) bool {
	t.mu.Lock()
	if t.ch != ch {
		t.mu.Unlock()
		return false
	}
	t.ch = nil
	t.channelID = ""
	t.token = ""
	t.identity = domain.Identity{}
	t.mu.Unlock()
	return true
}

func (t *Transport) connectedTo(ch *channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch == ch
}

func (t *Transport) fail(err error) error {
	t.log.Debug("In-memory connect failed", "error", err)
	t.NotifyError(err)
	return err
}

func (t *Transport) wait(ctx context.Context) error {
	if t.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
