// Package chatapi is the wire contract between the chat server and its network clients.
// Over gRPC the messages are protobuf encoded following chat.proto (wire.go),
// the browser gateway serves the same types as JSON.
package chatapi

import (
	"live-chat/domain"
	"live-chat/domain/event"
	"time"

	"github.com/samber/lo"
)

type Message struct {
	ID          string    `json:"id"`
	Sequence    uint64    `json:"sequence"`
	ChannelID   string    `json:"channel_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

type ConnectRequest struct {
	ChannelID string `json:"channel_id"`
}

type Welcome struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

type Snapshot struct {
	Messages []Message `json:"messages"`
}

// ChannelEvent is one frame of the Connect stream. Exactly one field is set.
type ChannelEvent struct {
	Welcome  *Welcome  `json:"welcome,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Message  *Message  `json:"message,omitempty"`
}

type PostMessageRequest struct {
	ChannelID string `json:"channel_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type PostMessageResponse struct {
	Message Message `json:"message"`
}

type HistoryRequest struct {
	ChannelID string `json:"channel_id"`
	Before    uint64 `json:"before,omitempty"`
	Limit     int32  `json:"limit,omitempty"`
}

type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:          m.ID,
		Sequence:    m.Sequence,
		ChannelID:   m.ChannelID.String(),
		DisplayName: m.DisplayName,
		Text:        m.Text,
		CreatedAt:   m.CreatedAt,
	}
}

func (m Message) ToDomain() domain.Message {
	return domain.Message{
		ID:          m.ID,
		Sequence:    m.Sequence,
		ChannelID:   domain.ChannelID(m.ChannelID),
		DisplayName: m.DisplayName,
		Text:        m.Text,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// FromMessages never returns nil so an empty snapshot encodes as [].
func FromMessages(messages []domain.Message) []Message {
	return lo.Map(messages, func(m domain.Message, _ int) Message {
		return FromMessage(m)
	})
}

func ToMessages(messages []Message) []domain.Message {
	return lo.Map(messages, func(m Message, _ int) domain.Message {
		return m.ToDomain()
	})
}

// FromEvent converts what a subscription yields into a stream frame.
func FromEvent(e event.ChannelEvent) (*ChannelEvent, bool) {
	switch evt := e.(type) {
	case event.Welcome:
		return &ChannelEvent{Welcome: &Welcome{SessionID: evt.SessionID, DisplayName: evt.DisplayName}}, true
	case event.Snapshot:
		return &ChannelEvent{Snapshot: &Snapshot{Messages: FromMessages(evt.Messages)}}, true
	case event.MessageAppended:
		return &ChannelEvent{Message: lo.ToPtr(FromMessage(evt.Message))}, true
	}
	return nil, false
}
