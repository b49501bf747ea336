// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable once appended to a channel log.
package domain

import (
	"time"
)

// Message represents an immutable chat record appended to a channel log.
// ID, Sequence and CreatedAt are assigned by the broadcast channel, never by the sender.
type Message struct {
	ID          string // ULID, unique within the channel
	Sequence    uint64 // position in the channel log, starts at 1
	ChannelID   ChannelID
	DisplayName string // sender label at send time
	Text        string
	CreatedAt   time.Time
}

// NewestFirst returns a copy of the chronological messages in display order.
func NewestFirst(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}
