package scaler

import (
	"context"

	"github.com/cuemby/scaled/pkg/profile"
	"github.com/cuemby/scaled/pkg/types"
)

// syncMetrics pulls host status into the aggregator and feeds the
// per-service pressure controllers
func (s *Scaler) syncMetrics() {
	for s.sleep(metricSyncInterval) {
		s.syncMetricsOnce()
	}
}

func (s *Scaler) syncMetricsOnce() {
	ctx := context.Background()
	now := float64(s.now().UnixNano()) / 1e9

	items, err := s.statusTable.Items(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read status table")
	}
	for host, entry := range items {
		// Entries still inside their deadline count toward the roll-up
		if now < entry.Expiry {
			busy := 0.0
			if entry.State == types.HostStateRunning {
				busy = metricSyncInterval.Seconds()
			}
			s.state.Update(entry.Service, host, 0, busy)
		}

		// An entry expired a while ago means the host is gone
		if now > entry.Expiry+staleStatusGrace.Seconds() {
			if err := s.statusTable.Pop(ctx, host); err != nil {
				s.logger.Warn().Err(err).Str("host", host).Msg("Failed to drop stale status entry")
			}
		}
	}

	exportInterval := s.cfg.Metrics.ExportInterval.Seconds()
	s.registry.WithLock(func(profiles []*profile.Profile) {
		for _, p := range profiles {
			if reading, ok := s.state.Read(p.Name); ok {
				delta := s.now().Sub(p.LastUpdate).Seconds()
				p.Update(delta, reading.Instances, s.queueLength(ctx, p), reading.DutyCycle)
			}

			// A service sitting at zero instances sends no heartbeats, so
			// poll its queue directly or it would never wake up
			if s.controller.GetTarget(p.Name) == 0 && p.DesiredInstances == 0 && p.Queue != nil {
				queueLength := s.queueLength(ctx, p)
				if queueLength > 0 {
					s.logger.Info().
						Str("service", p.Name).
						Int("queue", queueLength).
						Msg("Service at zero instances has messages")
					p.Update(exportInterval, 0, queueLength, p.TargetDutyCycle)
				}
			}
		}
	})
}

func (s *Scaler) queueLength(ctx context.Context, p *profile.Profile) int {
	if p.Queue == nil {
		return 0
	}
	n, err := p.Queue.Length(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("service", p.Name).Msg("Failed to read queue length")
		return 0
	}
	return n
}
