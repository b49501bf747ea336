package domain

import (
	"time"
)

// ChannelStats is a point-in-time view of one broadcast channel.
type ChannelStats struct {
	ChannelID    ChannelID
	Subscribers  int
	LastSequence uint64
	LastActivity time.Time
}

// HubStats aggregates every live channel of a process.
type HubStats struct {
	Channels    int
	Subscribers int
	PerChannel  []ChannelStats
}
