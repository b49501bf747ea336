package repositories

import (
	"live-chat/contract"
	"live-chat/domain"
	"sync"
)

var _ contract.MessageRepository = (*MemoryRepository)(nil)

// MemoryRepository keeps channel logs in process memory.
// When retain is positive only the most recent retain messages of each channel are kept.
type MemoryRepository struct {
	mu       sync.RWMutex
	retain   int
	channels map[domain.ChannelID][]domain.Message
	last     map[domain.ChannelID]uint64
}

func NewMemoryRepository(retain int) *MemoryRepository {
	return &MemoryRepository{
		retain:   retain,
		channels: make(map[domain.ChannelID][]domain.Message),
		last:     make(map[domain.ChannelID]uint64),
	}
}

func (r *MemoryRepository) StoreMessage(message domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages := append(r.channels[message.ChannelID], message)
	if r.retain > 0 && len(messages) > r.retain {
		messages = append([]domain.Message(nil), messages[len(messages)-r.retain:]...)
	}
	r.channels[message.ChannelID] = messages
	if message.Sequence > r.last[message.ChannelID] {
		r.last[message.ChannelID] = message.Sequence
	}
	return nil
}

func (r *MemoryRepository) GetMessages(channelID domain.ChannelID, before uint64, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := make([]domain.Message, 0, len(r.channels[channelID]))
	for _, msg := range r.channels[channelID] {
		if before == 0 || msg.Sequence < before {
			history = append(history, msg)
		}
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (r *MemoryRepository) LastSequence(channelID domain.ChannelID) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last[channelID], nil
}

func (r *MemoryRepository) DeleteChannel(channelID domain.ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, channelID)
	delete(r.last, channelID)
	return nil
}
