package projection

import (
	"live-chat/domain"
	"live-chat/domain/event"
	"testing"

	"github.com/stretchr/testify/require"
)

func message(id, text string, seq uint64) domain.Message {
	return domain.Message{ID: id, Sequence: seq, ChannelID: "game-123", DisplayName: "Alice S.", Text: text}
}

func TestTimeline_Snapshot_Is_Shown_Newest_First(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	timeline.Consume(event.Snapshot{ChannelID: "game-123", Messages: []domain.Message{
		message("1", "First", 1), message("2", "Second", 2), message("3", "Third", 3),
	}})

	req.Equal([]string{"Third", "Second", "First"}, texts(timeline.Messages()))
}

func TestTimeline_Messages_Are_Prepended_Once(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	timeline.Replace([]domain.Message{message("1", "First", 1)})

	// When the same message is observed twice
	timeline.Consume(event.MessageAppended{Message: message("2", "Second", 2)})
	timeline.Consume(event.MessageAppended{Message: message("2", "Second", 2)})
	timeline.Prepend(message("1", "First", 1))

	// Then it is shown once, most recent first
	req.Equal([]string{"Second", "First"}, texts(timeline.Messages()))
	req.Equal(2, timeline.Len())
}

func TestTimeline_Replace_And_Reset_Drop_Previous_View(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	timeline.Prepend(message("1", "old channel", 1))

	timeline.Replace([]domain.Message{message("a", "new channel", 1)})
	req.Equal([]string{"new channel"}, texts(timeline.Messages()))

	timeline.Reset()
	req.NotNil(timeline.Messages())
	req.Empty(timeline.Messages())

	// An id seen before the reset is accepted again
	timeline.Prepend(message("a", "new channel", 1))
	req.Equal(1, timeline.Len())
}

func TestTimeline_Messages_Returns_A_Copy(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	timeline.Prepend(message("1", "First", 1))

	view := timeline.Messages()
	view[0].Text = "mutated"

	req.Equal("First", timeline.Messages()[0].Text)
}

func texts(messages []domain.Message) []string {
	res := make([]string, 0, len(messages))
	for _, m := range messages {
		res = append(res, m.Text)
	}
	return res
}
