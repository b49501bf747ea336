// Package event defines what a broadcast channel emits to one subscriber.
// A subscriber always observes Welcome, then Snapshot, then MessageAppended in log order.
package event

import (
	"live-chat/domain"
)

type ChannelEvent interface {
	Channel() domain.ChannelID
}

// Welcome acknowledges a subscription and carries the server-side session id.
type Welcome struct {
	ChannelID   domain.ChannelID
	SessionID   string
	DisplayName string
}

func (w Welcome) Channel() domain.ChannelID { return w.ChannelID }

// Snapshot is the channel log content at the instant the subscription succeeded, oldest first.
type Snapshot struct {
	ChannelID domain.ChannelID
	Messages  []domain.Message
}

func (s Snapshot) Channel() domain.ChannelID { return s.ChannelID }

// MessageAppended is one incremental message, in channel log order.
type MessageAppended struct {
	Message domain.Message
}

func (m MessageAppended) Channel() domain.ChannelID { return m.Message.ChannelID }
