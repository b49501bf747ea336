// Package observability exposes Prometheus metrics and OpenTelemetry tracing for the chat core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_channels_active",
			Help: "Broadcast channels currently held in memory",
		},
	)

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_subscribers_active",
			Help: "Subscribers currently connected across all channels",
		},
	)

	SubscriptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_subscriptions_total",
			Help: "Total successful channel subscriptions",
		},
	)

	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_messages_appended_total",
			Help: "Total messages appended to channel logs",
		},
	)

	SubscribersEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_subscribers_evicted_total",
			Help: "Subscribers removed by the channel instead of a voluntary leave",
		},
		[]string{"reason"}, // "slow_consumer" or "channel_retired"
	)

	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livechat_append_duration_seconds",
			Help:    "Time spent appending and fanning out one message",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_http_requests_total",
			Help: "Total HTTP gateway requests",
		},
		[]string{"method", "route", "status"},
	)
)
