// Package scaler implements the autoscaling control plane: a supervisor
// running the synchronizer, metric ingestor, allocator, timeout reaper,
// status janitor, event logger and metric exporter as restartable
// workers over a shared profile registry.
package scaler
