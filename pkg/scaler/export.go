package scaler

import (
	"github.com/cuemby/scaled/pkg/metrics"
	"github.com/cuemby/scaled/pkg/profile"
)

// exportMetrics publishes per-service scaling state and the cluster
// resource pool at the export cadence
func (s *Scaler) exportMetrics() {
	for s.sleep(s.cfg.Metrics.ExportInterval) {
		s.exportMetricsOnce()
	}
}

type serviceRecord struct {
	name           string
	running        int
	target         int
	minimum        int
	maximum        int
	dynamicMaximum int
	queue          int
	dutyCycle      float64
	pressure       float64
}

func (s *Scaler) exportMetricsOnce() {
	var records []serviceRecord
	s.registry.WithLock(func(profiles []*profile.Profile) {
		for _, p := range profiles {
			records = append(records, serviceRecord{
				name:           p.Name,
				running:        p.RunningInstances,
				target:         p.DesiredInstances,
				minimum:        p.MinInstances,
				maximum:        p.InstanceLimit(),
				dynamicMaximum: p.MaxInstances(),
				queue:          p.QueueLength,
				dutyCycle:      p.DutyCycle,
				pressure:       p.Pressure,
			})
		}
	})

	for _, r := range records {
		metrics.ServiceRunning.WithLabelValues(r.name).Set(float64(r.running))
		metrics.ServiceTarget.WithLabelValues(r.name).Set(float64(r.target))
		metrics.ServiceMinimum.WithLabelValues(r.name).Set(float64(r.minimum))
		metrics.ServiceMaximum.WithLabelValues(r.name).Set(float64(r.maximum))
		metrics.ServiceDynamicMaximum.WithLabelValues(r.name).Set(float64(r.dynamicMaximum))
		metrics.ServiceQueueLength.WithLabelValues(r.name).Set(float64(r.queue))
		metrics.ServiceDutyCycle.WithLabelValues(r.name).Set(r.dutyCycle)
		metrics.ServicePressure.WithLabelValues(r.name).Set(r.pressure)
	}

	cpuFree, cpuTotal := s.controller.CPUInfo()
	memFree, memTotal := s.controller.MemoryInfo()
	metrics.ClusterCPUFree.Set(cpuFree)
	metrics.ClusterCPUTotal.Set(cpuTotal)
	metrics.ClusterMemoryFree.Set(float64(memFree))
	metrics.ClusterMemoryTotal.Set(float64(memTotal))
}
