// Package workers contains the supervised background loops: stream fan-out
// and telemetry reporting. Workers are deliberately small; the supervisor
// owns restart and shutdown behavior.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chat-sync/contract"
)

var errWorkerPanic = errors.New("worker panic")

// Supervisor runs each worker in its own goroutine, recovers panics,
// restarts crashed workers after a delay, and stops everything when the
// parent context ends. A failure in one worker never stops the supervisor.
type Supervisor struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
	delay   time.Duration
	workers []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartDelay time.Duration) *Supervisor {
	return &Supervisor{log: log, delay: restartDelay}
}

func (s *Supervisor) Add(worker ...contract.Worker) *Supervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run blocks until every supervised worker has finished. Cancelling the
// parent context stops the workers; calling Stop cancels only the
// supervisor's own subtree.
func (s *Supervisor) Run(ctx context.Context) {
	supervised, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	for _, worker := range s.workers {
		s.start(supervised, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info("Stopping worker", "name", name)
				return
			}

			err := runGuarded(ctx, worker)
			if err == nil {
				// Clean termination: never restart.
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delay):
			}
		}
	}()
}

// runGuarded turns a worker panic into an error so the restart loop stays
// alive.
func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errWorkerPanic
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels the supervised subtree. Run keeps waiting until all workers
// returned.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
