package workers

import (
	"context"
	"live-chat/contract"
	"log/slog"
	"time"
)

// ChannelJanitorWorker periodically drops channels that have been empty and quiet for idleTTL.
type ChannelJanitorWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	idleTTL  time.Duration
	interval time.Duration
}

func NewChannelJanitorWorker(log *slog.Logger, registry contract.IRegistry, idleTTL, interval time.Duration) *ChannelJanitorWorker {
	return &ChannelJanitorWorker{
		log:      log,
		registry: registry,
		idleTTL:  idleTTL,
		interval: interval,
	}
}

func (w *ChannelJanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel janitor")
			return nil
		case <-ticker.C:
			if removed := w.registry.Sweep(w.idleTTL); len(removed) > 0 {
				w.log.Info("Idle channels swept", "count", len(removed))
			}
		}
	}
}
