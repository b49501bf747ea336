package workers

import (
	"context"
	"live-chat/contract"
	"live-chat/errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultRestartInterval is the pause between a crash and the restart of a worker.
const DefaultRestartInterval = 200 * time.Millisecond

// Supervisor
// Runs every registered worker in its own goroutine
// Recovers panics and turns them into ErrWorkerPanic
// Restarts a crashed worker after the restart interval
// Never restarts a worker that returned nil
// Stops everything when the parent context or Stop cancels it
type Supervisor struct {
	mu              sync.Mutex
	cancel          context.CancelFunc // cancels the supervised context, set by Run
	wg              sync.WaitGroup     // one per running worker goroutine
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval}
}

// Run blocks until every worker returned.
// Canceling the parent stops the workers, so does calling Stop.
func (s *Supervisor) Run(ctx context.Context) {
	// 1. A child context: the parent cancels it, Stop cancels it too without touching the parent
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := s.workers
	s.mu.Unlock()
	defer cancel()

	// 2. One supervised goroutine per worker
	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}

	// 3. Block until every goroutine returned
	s.wg.Wait()
}

// Add registers workers for the next Run. Workers added after Run has started go through Start.
func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision.
// A panic or an error restarts the worker after the restart interval,
// a nil return means the worker is done and is never restarted.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			// 1. Nothing to restart once the supervision is over
			if ctx.Err() != nil {
				s.log.Info("Stopping worker", "name", workerName)
				return
			}

			// 2. Run the worker, a panic is turned into an error for this iteration only
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panicked", "name", workerName, "panic", r)
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			// 3. A nil return is a clean end, never restarted
			if err == nil {
				s.log.Info("Worker finished", "name", workerName)
				return
			}

			// 4. An error caused by the cancellation is a stop, not a crash
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			// 5. Crash: wait the restart interval, unless the supervision ends first
			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				// Stop wins over the pending restart
				return
			case <-time.After(s.restartInterval):
				// Still supervised, loop to restart
			}
		}
	}()
}

// Stop cancels every supervised worker. Run returns once they are all gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
