package domain

type Command interface {
	Channel() ChannelID
}

// PostMessageCommand is a send intent coming from a connected session.
// Subject is the authenticated caller: when set, the session must belong to it.
type PostMessageCommand struct {
	ChannelID ChannelID
	SessionID string
	Subject   string
	Text      string `validate:"required,notblank"`
}

func (p PostMessageCommand) Channel() ChannelID {
	return p.ChannelID
}

// GetHistoryCommand pages backwards through a channel log.
// A zero Before means "from the most recent message".
type GetHistoryCommand struct {
	ChannelID ChannelID
	Before    uint64
	Limit     int
}

func (g GetHistoryCommand) Channel() ChannelID {
	return g.ChannelID
}
