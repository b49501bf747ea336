// Package runtime holds the authoritative broadcast channels and the background workers around them.
// It orchestrates the system without knowing about transports or wire formats.
package runtime

import (
	"context"
	"live-chat/contract"
	"live-chat/runtime/workers"
	"log/slog"
	"time"
)

// OrchestratorConfig selects the maintenance workers and their pace.
type OrchestratorConfig struct {
	ChannelIdleTTL  time.Duration // 0 disables the janitor
	JanitorInterval time.Duration
	StatsInterval   time.Duration // 0 disables the periodic summary
}

// Orchestrator owns the registry lifecycle: it registers the maintenance workers
// to the supervisor and runs them until the context is canceled.
type Orchestrator struct {
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   contract.IRegistry
	config     OrchestratorConfig
}

// NewOrchestrator only wires its dependencies, nothing runs before Start.
func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry contract.IRegistry, config OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		config:     config,
	}
}

// Registry exposes the channels served by this orchestrator.
func (o *Orchestrator) Registry() contract.IRegistry {
	return o.registry
}

// Start registers the maintenance workers then hands them to the supervisor.
// It blocks until ctx is canceled and every worker stopped.
func (o *Orchestrator) Start(ctx context.Context) {
	// 1. Preparation: pick the workers enabled by the configuration
	prepared := o.prepareWorkers()

	// 2. Registration to the supervisor
	for _, w := range prepared {
		o.supervisor.Add(w)
	}

	// 3. Supervision until shutdown
	o.log.Info("Starting orchestrator and all supervised workers", "workers", len(prepared))
	o.supervisor.Run(ctx)
	o.log.Info("Orchestrator stopped")
}

// prepareWorkers builds the workers the configuration enables:
//   - the channel janitor, when ChannelIdleTTL is set, sweeping every JanitorInterval
//     (or every ChannelIdleTTL when no interval is given)
//   - the stats reporter, when StatsInterval is set
func (o *Orchestrator) prepareWorkers() []contract.Worker {
	var res []contract.Worker
	if o.config.ChannelIdleTTL > 0 {
		interval := o.config.JanitorInterval
		if interval <= 0 {
			interval = o.config.ChannelIdleTTL
		}
		res = append(res, workers.NewChannelJanitorWorker(o.log, o.registry, o.config.ChannelIdleTTL, interval))
	} else {
		o.log.Info("Channel janitor disabled, channels live for the whole process")
	}
	if o.config.StatsInterval > 0 {
		res = append(res, workers.NewStatsReporterWorker(o.log, o.registry, o.config.StatsInterval))
	}
	return res
}
