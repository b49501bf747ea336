package runtime

import (
	"context"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/observability"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultQueueSize    = 64
	DefaultHistoryLimit = 1000
	minQueueSize        = 2 // welcome + snapshot
)

// Registry maps channel ids to live broadcast channels.
// Channels are created on first join and only removed by Sweep, so a late joiner still
// receives the history of a channel whose subscribers all left.
type Registry struct {
	mu           sync.RWMutex
	log          *slog.Logger
	repository   contract.MessageRepository
	channels     map[domain.ChannelID]*Channel
	queueSize    int
	historyLimit int
	now          func() time.Time
}

type Option func(*Registry)

// WithQueueSize bounds the number of pending events per subscriber.
func WithQueueSize(size int) Option {
	return func(r *Registry) {
		r.queueSize = max(size, minQueueSize)
	}
}

// WithHistoryLimit bounds the snapshot and the history page size.
func WithHistoryLimit(limit int) Option {
	return func(r *Registry) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(log *slog.Logger, repository contract.MessageRepository, opts ...Option) *Registry {
	r := &Registry{
		log:          log,
		repository:   repository,
		channels:     make(map[domain.ChannelID]*Channel),
		queueSize:    DefaultQueueSize,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join subscribes identity to channelID, creating the channel on the fly.
// The returned subscription first yields a Welcome then a Snapshot.
func (r *Registry) Join(channelID domain.ChannelID, identity domain.Identity) (contract.Subscription, error) {
	if channelID.IsZero() {
		return nil, errors.ErrChannelRequired
	}
	if identity.DisplayName == "" {
		return nil, errors.ErrIdentityRequired
	}
	for {
		channel, err := r.getOrCreate(channelID)
		if err != nil {
			return nil, err
		}
		sub, err := channel.join(identity)
		if errors.Is(err, errChannelRetired) {
			// swept between lookup and join, retry on a fresh channel
			continue
		}
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

// Publish appends a message on behalf of a subscribed session.
func (r *Registry) Publish(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if cmd.ChannelID.IsZero() {
		return domain.Message{}, errors.ErrChannelRequired
	}
	channel, ok := r.get(cmd.ChannelID)
	if !ok {
		return domain.Message{}, errors.ErrUnknownSession
	}
	return channel.append(ctx, cmd)
}

// History returns up to cmd.Limit messages older than cmd.Before, oldest first.
func (r *Registry) History(cmd domain.GetHistoryCommand) ([]domain.Message, error) {
	if cmd.ChannelID.IsZero() {
		return nil, errors.ErrChannelRequired
	}
	limit := cmd.Limit
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}
	return r.repository.GetMessages(cmd.ChannelID, cmd.Before, limit)
}

func (r *Registry) Stats() domain.HubStats {
	r.mu.RLock()
	channels := lo.Values(r.channels)
	r.mu.RUnlock()

	perChannel := lo.Map(channels, func(c *Channel, _ int) domain.ChannelStats {
		return c.stats()
	})
	sort.Slice(perChannel, func(i, j int) bool {
		return perChannel[i].ChannelID < perChannel[j].ChannelID
	})
	return domain.HubStats{
		Channels: len(perChannel),
		Subscribers: lo.SumBy(perChannel, func(s domain.ChannelStats) int {
			return s.Subscribers
		}),
		PerChannel: perChannel,
	}
}

// Sweep drops channels without subscribers that saw no activity for idleFor,
// together with their stored log. It returns the removed channel ids.
func (r *Registry) Sweep(idleFor time.Duration) []domain.ChannelID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []domain.ChannelID
	for id, channel := range r.channels {
		if !channel.retireIfIdle(idleFor) {
			continue
		}
		delete(r.channels, id)
		removed = append(removed, id)
		observability.ChannelsActive.Dec()
		// held under r.mu so a concurrent join cannot recreate the channel on a half deleted log
		if err := r.repository.DeleteChannel(id); err != nil {
			r.log.Error("Failed to delete channel log", "channel_id", id.String(), "error", err)
			continue
		}
		r.log.Info("Idle channel removed", "channel_id", id.String())
	}
	return removed
}

func (r *Registry) get(channelID domain.ChannelID) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channel, ok := r.channels[channelID]
	return channel, ok
}

func (r *Registry) getOrCreate(channelID domain.ChannelID) (*Channel, error) {
	if channel, ok := r.get(channelID); ok {
		return channel, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if channel, ok := r.channels[channelID]; ok {
		return channel, nil
	}
	channel, err := newChannel(channelID, r.log, r.repository, r.historyLimit, r.queueSize, r.now)
	if err != nil {
		return nil, err
	}
	r.channels[channelID] = channel
	observability.ChannelsActive.Inc()
	r.log.Info("Channel created", "channel_id", channelID.String(), "last_sequence", channel.lastSequence)
	return channel, nil
}
