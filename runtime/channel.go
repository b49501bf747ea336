package runtime

import (
	"context"
	"fmt"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/domain/event"
	"live-chat/errors"
	"live-chat/observability"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errChannelRetired = fmt.Errorf("channel retired")

// Channel is the authoritative log of one conversation plus its current subscribers.
// Appends and membership changes are serialized by mu, which is what gives every
// subscriber the same gap-free order and makes the snapshot atomic with registration.
type Channel struct {
	mu           sync.Mutex
	id           domain.ChannelID
	log          *slog.Logger
	repository   contract.MessageRepository
	historyLimit int
	queueSize    int
	now          func() time.Time
	lastSequence uint64
	lastActivity time.Time
	subscribers  map[string]*Subscription
	retired      bool
}

func newChannel(id domain.ChannelID, log *slog.Logger, repository contract.MessageRepository,
	historyLimit, queueSize int, now func() time.Time) (*Channel, error) {
	last, err := repository.LastSequence(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load last sequence of channel %s: %w", id, err)
	}
	return &Channel{
		id:           id,
		log:          log.With("channel_id", id.String()),
		repository:   repository,
		historyLimit: historyLimit,
		queueSize:    queueSize,
		now:          now,
		lastSequence: last,
		lastActivity: now(),
		subscribers:  make(map[string]*Subscription),
	}, nil
}

// join registers a subscriber and enqueues its Welcome and Snapshot before any append can reach it.
func (c *Channel) join(identity domain.Identity) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retired {
		return nil, errChannelRetired
	}

	snapshot, err := c.repository.GetMessages(c.id, 0, c.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	sub := newSubscription(uuid.NewString(), c.id, identity, c.queueSize, c.leave)
	sub.offer(event.Welcome{ChannelID: c.id, SessionID: sub.id, DisplayName: identity.DisplayName})
	sub.offer(event.Snapshot{ChannelID: c.id, Messages: snapshot})

	c.subscribers[sub.id] = sub
	c.lastActivity = c.now()

	observability.SubscribersActive.Inc()
	observability.SubscriptionsTotal.Inc()
	c.log.Debug("Subscriber joined", "session_id", sub.id, "display_name", identity.DisplayName,
		"snapshot_size", len(snapshot))
	return sub, nil
}

// append assigns id, sequence and timestamp, stores the message and fans it out.
// A message is delivered to every subscriber present at append time, the sender included.
func (c *Channel) append(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	_, span := observability.Tracer().Start(ctx, "channel.append",
		trace.WithAttributes(attribute.String("channel_id", c.id.String())))
	defer span.End()
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// A session posted by someone else is reported like an unknown one
	sender, ok := c.subscribers[cmd.SessionID]
	if !ok || c.retired || (cmd.Subject != "" && cmd.Subject != sender.identity.Subject) {
		return domain.Message{}, errors.ErrUnknownSession
	}

	message := domain.Message{
		ID:          ulid.Make().String(),
		Sequence:    c.lastSequence + 1,
		ChannelID:   c.id,
		DisplayName: sender.identity.DisplayName,
		Text:        cmd.Text,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.repository.StoreMessage(message); err != nil {
		span.RecordError(err)
		return domain.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	c.lastSequence = message.Sequence
	c.lastActivity = message.CreatedAt

	for _, sub := range c.subscribers {
		if !sub.offer(event.MessageAppended{Message: message}) {
			c.evict(sub, errors.ErrSlowConsumer, "slow_consumer")
		}
	}

	observability.MessagesAppended.Inc()
	observability.AppendDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int64("sequence", int64(message.Sequence)))
	return message, nil
}

// leave removes a subscriber voluntarily. Other subscribers are not affected.
func (c *Channel) leave(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscribers[sub.id]; !ok {
		return
	}
	delete(c.subscribers, sub.id)
	sub.terminate(nil)
	c.lastActivity = c.now()
	observability.SubscribersActive.Dec()
	c.log.Debug("Subscriber left", "session_id", sub.id)
}

// evict is called with mu held.
func (c *Channel) evict(sub *Subscription, err error, reason string) {
	delete(c.subscribers, sub.id)
	sub.terminate(err)
	observability.SubscribersActive.Dec()
	observability.SubscribersEvicted.WithLabelValues(reason).Inc()
	c.log.Warn("Subscriber evicted", "session_id", sub.id, "reason", reason)
}

// retireIfIdle marks the channel as retired when it has no subscriber and no activity since idleFor.
func (c *Channel) retireIfIdle(idleFor time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subscribers) > 0 || c.now().Sub(c.lastActivity) < idleFor {
		return false
	}
	c.retired = true
	return true
}

func (c *Channel) stats() domain.ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ChannelStats{
		ChannelID:    c.id,
		Subscribers:  len(c.subscribers),
		LastSequence: c.lastSequence,
		LastActivity: c.lastActivity,
	}
}
