package domain

import "strings"

// ChannelID scopes isolation: one channel per live event (game identifier).
type ChannelID string

func (c ChannelID) String() string { return string(c) }

// IsZero reports whether the channel id is missing or blank.
func (c ChannelID) IsZero() bool {
	return strings.TrimSpace(string(c)) == ""
}
