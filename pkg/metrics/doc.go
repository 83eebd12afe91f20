// Package metrics exposes the scaler's Prometheus metrics and the
// liveness endpoint backed by the supervisor heartbeat.
package metrics
