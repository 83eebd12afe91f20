package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Per-service scaling state
	ServiceRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_running_instances",
			Help: "Observed replica count per service",
		},
		[]string{"service"},
	)

	ServiceTarget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_target_instances",
			Help: "Desired replica count per service",
		},
		[]string{"service"},
	)

	ServiceMinimum = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_minimum_instances",
			Help: "Effective minimum replica count per service",
		},
		[]string{"service"},
	)

	ServiceMaximum = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_maximum_instances",
			Help: "Configured replica cap per service (0 = unbounded)",
		},
		[]string{"service"},
	)

	ServiceDynamicMaximum = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_dynamic_maximum_instances",
			Help: "Growth-bounded replica ceiling per service",
		},
		[]string{"service"},
	)

	ServiceQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_queue_length",
			Help: "Work queue backlog per service",
		},
		[]string{"service"},
	)

	ServiceDutyCycle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_duty_cycle",
			Help: "Observed busy fraction per service",
		},
		[]string{"service"},
	)

	ServicePressure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scaled_service_pressure",
			Help: "Scaling pressure accumulator per service",
		},
		[]string{"service"},
	)

	// Cluster resource pool
	ClusterCPUFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scaled_cluster_cpu_free_cores",
			Help: "Unallocated CPU cores in the cluster pool",
		},
	)

	ClusterCPUTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scaled_cluster_cpu_total_cores",
			Help: "Total CPU cores in the cluster pool",
		},
	)

	ClusterMemoryFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scaled_cluster_memory_free_mb",
			Help: "Unallocated memory in the cluster pool",
		},
	)

	ClusterMemoryTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scaled_cluster_memory_total_mb",
			Help: "Total memory in the cluster pool",
		},
	)

	// Control loop counters
	SyncCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scaled_sync_cycles_total",
			Help: "Total number of service synchronization cycles",
		},
	)

	ScalingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaled_scaling_events_total",
			Help: "Replica target changes dispatched, by direction",
		},
		[]string{"service", "direction"},
	)

	ServiceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaled_service_errors_total",
			Help: "Orchestrator failures recorded per service",
		},
		[]string{"service"},
	)

	TimeoutsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scaled_timeouts_processed_total",
			Help: "Timed-out containers handed to the controller for a stop",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ServiceRunning)
	prometheus.MustRegister(ServiceTarget)
	prometheus.MustRegister(ServiceMinimum)
	prometheus.MustRegister(ServiceMaximum)
	prometheus.MustRegister(ServiceDynamicMaximum)
	prometheus.MustRegister(ServiceQueueLength)
	prometheus.MustRegister(ServiceDutyCycle)
	prometheus.MustRegister(ServicePressure)
	prometheus.MustRegister(ClusterCPUFree)
	prometheus.MustRegister(ClusterCPUTotal)
	prometheus.MustRegister(ClusterMemoryFree)
	prometheus.MustRegister(ClusterMemoryTotal)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(ScalingEventsTotal)
	prometheus.MustRegister(ServiceErrorsTotal)
	prometheus.MustRegister(TimeoutsProcessedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RemoveService drops all per-service series when a service is retired
func RemoveService(service string) {
	labels := prometheus.Labels{"service": service}
	ServiceRunning.Delete(labels)
	ServiceTarget.Delete(labels)
	ServiceMinimum.Delete(labels)
	ServiceMaximum.Delete(labels)
	ServiceDynamicMaximum.Delete(labels)
	ServiceQueueLength.Delete(labels)
	ServiceDutyCycle.Delete(labels)
	ServicePressure.Delete(labels)
}
