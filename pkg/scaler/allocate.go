package scaler

import (
	"sort"

	"github.com/cuemby/scaled/pkg/controller"
	"github.com/cuemby/scaled/pkg/metrics"
	"github.com/cuemby/scaled/pkg/profile"
)

// updateScaling reconciles replica targets against desired instances
// and the cluster resource budget
func (s *Scaler) updateScaling() {
	for s.sleep(scaleInterval) {
		s.updateScalingOnce()
	}
}

func (s *Scaler) updateScalingOnce() {
	var failures []error

	s.registry.WithLock(func(profiles []*profile.Profile) {
		targets := make(map[string]int, len(profiles))
		for _, p := range profiles {
			targets[p.Name] = s.controller.GetTarget(p.Name)
		}

		for _, p := range profiles {
			s.logger.Debug().
				Str("service", p.Name).
				Int("min", p.MinInstances).
				Int("desired", p.DesiredInstances).
				Int("target", targets[p.Name]).
				Int("max", p.MaxInstances()).
				Float64("pressure", p.Pressure).
				Float64("growth", p.GrowthThreshold).
				Float64("shrink", p.ShrinkThreshold).
				Msg("Scaling state")
		}

		writes := newPool(writePoolSize)

		// Phase 1: anything releasing resources is approved first so the
		// freed budget is available to the phases below
		for _, p := range profiles {
			if targets[p.Name] > p.DesiredInstances {
				s.logger.Info().
					Str("service", p.Name).
					Int("from", targets[p.Name]).
					Int("to", p.DesiredInstances).
					Msg("Service wants less resources")
				writes.call(s.setTargetCall(p.Name, p.DesiredInstances))
				metrics.ScalingEventsTotal.WithLabelValues(p.Name, "down").Inc()
				targets[p.Name] = p.DesiredInstances
			}
		}
		failures = append(failures, writes.wait()...)

		// Phase 2: services under their mandatory minimum are raised
		// before anyone else is considered
		for _, p := range profiles {
			if targets[p.Name] < p.MinInstances {
				s.logger.Info().
					Str("service", p.Name).
					Int("from", targets[p.Name]).
					Int("to", p.MinInstances).
					Msg("Service is not meeting minimum allocation")
				writes.call(s.setTargetCall(p.Name, p.MinInstances))
				metrics.ScalingEventsTotal.WithLabelValues(p.Name, "up").Inc()
				targets[p.Name] = p.MinInstances
			}
		}
		failures = append(failures, writes.wait()...)

		// Phase 3: grant the remaining budget one replica at a time,
		// least-running service first. The free pool may be spread over
		// many nodes but is treated as a single large one; the
		// orchestration layer sorts out placement.
		freeCPU := s.controller.FreeCPU()
		freeMemory := s.controller.FreeMemory()

		candidates := s.trimCandidates(profiles, targets, freeCPU, freeMemory)
		for len(candidates) > 0 {
			sort.SliceStable(candidates, func(i, j int) bool {
				return targets[candidates[i].Name] < targets[candidates[j].Name]
			})

			front := candidates[0]
			freeCPU -= front.CPU()
			freeMemory -= front.RAM()
			targets[front.Name]++

			// Re-derive from the profiles so ties keep insertion order
			candidates = s.trimCandidates(profiles, targets, freeCPU, freeMemory)
		}

		// Apply the adjustments back to the controller
		for _, p := range profiles {
			value := targets[p.Name]
			old := s.controller.GetTarget(p.Name)
			if value != old {
				s.logger.Info().
					Str("service", p.Name).
					Int("from", old).
					Int("to", value).
					Msg("Scaling service")
				writes.call(s.setTargetCall(p.Name, value))
				if value > old {
					metrics.ScalingEventsTotal.WithLabelValues(p.Name, "up").Inc()
				} else {
					metrics.ScalingEventsTotal.WithLabelValues(p.Name, "down").Inc()
				}
			}
		}
		failures = append(failures, writes.wait()...)
	})

	// Error reporting happens outside the registry lock
	for _, err := range failures {
		s.reportError(err)
	}
}

// trimCandidates keeps the profiles still wanting growth that fit the
// remaining budget, logging the ones dropped for lack of resources
func (s *Scaler) trimCandidates(profiles []*profile.Profile, targets map[string]int,
	freeCPU float64, freeMemory int64) []*profile.Profile {
	kept := make([]*profile.Profile, 0, len(profiles))
	dropped := make(map[string][2]any)
	for _, p := range profiles {
		if p.DesiredInstances <= targets[p.Name] {
			continue
		}
		if p.CPU() > freeCPU || p.RAM() > freeMemory {
			dropped[p.Name] = [2]any{p.CPU(), p.RAM()}
			continue
		}
		kept = append(kept, p)
	}
	if len(dropped) > 0 {
		s.logger.Debug().Interface("services", dropped).Msg("Not enough resources to grow")
	}
	return kept
}

// setTargetCall wraps a controller write for the pool, attributing any
// failure to the service
func (s *Scaler) setTargetCall(name string, target int) func() error {
	return func() error {
		if err := s.controller.SetTarget(name, target); err != nil {
			return controller.NewServiceControlError(name, err)
		}
		return nil
	}
}
