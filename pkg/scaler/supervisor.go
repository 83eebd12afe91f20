package scaler

import (
	"errors"
	"runtime/debug"
	"time"

	"github.com/cuemby/scaled/pkg/controller"
	"github.com/cuemby/scaled/pkg/metrics"
)

// worker is one long-lived control loop managed by the supervisor
type worker struct {
	name string
	fn   func()
}

func (s *Scaler) workers() []worker {
	return []worker{
		{"service-sync", s.syncServices},
		{"metric-ingest", s.syncMetrics},
		{"scale-adjust", s.updateScaling},
		{"timeout-reaper", s.processTimeouts},
		{"status-janitor", s.flushServiceStatus},
		{"container-events", s.logContainerEvents},
		{"metric-export", s.exportMetrics},
	}
}

// Run starts every worker and supervises them until Stop is called:
// dead workers are restarted each pass and a liveness heartbeat is
// emitted. On shutdown the workers are joined within a fixed grace
// period and the controller is stopped.
func (s *Scaler) Run() {
	workers := s.workers()
	alive := make(map[string]chan struct{})
	joined := make(chan struct{})

	for s.running() {
		for _, w := range workers {
			if done, ok := alive[w.name]; ok {
				select {
				case <-done:
					s.logger.Warn().Str("worker", w.name).Msg("Restarting worker")
					delete(alive, w.name)
				default:
					continue
				}
			} else {
				s.logger.Info().Str("worker", w.name).Msg("Starting worker")
			}

			done := make(chan struct{})
			alive[w.name] = done
			go func(w worker, done chan struct{}) {
				defer close(done)
				s.runWorker(w)
			}(w, done)
		}

		metrics.Heartbeat()
		s.sleep(supervisorInterval)
	}

	// Join everything within the shutdown grace period, then exit
	// regardless; in-flight controller calls are not canceled
	go func() {
		for _, done := range alive {
			<-done
		}
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(shutdownGrace):
		s.logger.Warn().Msg("Workers did not stop in time")
	}

	s.controller.Stop()
}

// runWorker executes one worker, containing any crash so the supervisor
// can restart it
func (s *Scaler) runWorker(w worker) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("worker", w.name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Worker crashed")

			// A crash carrying a service control failure also counts
			// against the offending service
			var sce *controller.ServiceControlError
			if err, ok := r.(error); ok && errors.As(err, &sce) {
				s.reportError(err)
			}
		}
	}()
	w.fn()
}
