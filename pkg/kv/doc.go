// Package kv wraps the redis structures shared between the scaler and the
// worker fleet: named queues, per-service priority queues, and the expiring
// host status table.
package kv
