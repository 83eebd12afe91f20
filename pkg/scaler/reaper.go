package scaler

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cuemby/scaled/pkg/kv"
	"github.com/cuemby/scaled/pkg/metrics"
)

// processTimeouts consumes the timeout queue and asks the controller to
// stop each named container. Stops run on a bounded worker group; there
// are no retries, the orchestrator is the source of truth.
func (s *Scaler) processTimeouts() {
	ctx := context.Background()
	sem := make(chan struct{}, writePoolSize)
	var wg sync.WaitGroup
	defer wg.Wait()

	for s.running() {
		data, err := s.timeoutQueue.Pop(ctx, timeoutPopWait)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to pop timeout queue")
			s.sleep(timeoutPopWait)
			continue
		}
		if data == nil {
			continue
		}

		var msg kv.TimeoutMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Discarding malformed timeout message")
			continue
		}

		s.logger.Info().
			Str("service", msg.Service).
			Str("container", msg.Container).
			Msg("Killing timed out service container")
		metrics.TimeoutsProcessedTotal.Inc()

		wg.Add(1)
		sem <- struct{}{}
		go func(msg kv.TimeoutMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.controller.StopContainer(msg.Service, msg.Container); err != nil {
				s.logger.Error().Err(err).
					Str("container", msg.Container).
					Msg("Failed to stop timed out container")
			}
		}(msg)
	}
}
