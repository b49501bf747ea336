package workers

import (
	"context"
	"live-chat/contract"
	"log/slog"
	"time"
)

// StatsReporterWorker logs a periodic summary of the live channels.
type StatsReporterWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	interval time.Duration
}

func NewStatsReporterWorker(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *StatsReporterWorker {
	return &StatsReporterWorker{log: log, registry: registry, interval: interval}
}

func (w *StatsReporterWorker) Run(ctx context.Context) error {
	startTime := time.Now()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.report(startTime)
			return nil
		case <-ticker.C:
			w.report(startTime)
		}
	}
}

func (w *StatsReporterWorker) report(startTime time.Time) {
	stats := w.registry.Stats()
	busiest := ""
	most := 0
	for _, c := range stats.PerChannel {
		if c.Subscribers > most {
			busiest, most = c.ChannelID.String(), c.Subscribers
		}
	}
	w.log.Info("Hub stats",
		"uptime", time.Since(startTime).Round(time.Second).String(),
		"channels", stats.Channels,
		"subscribers", stats.Subscribers,
		"busiest_channel", busiest,
		"busiest_subscribers", most,
	)
}
