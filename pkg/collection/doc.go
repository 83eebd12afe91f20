// Package collection rolls per-host status samples up into per-service
// throughput and duty cycle readings over a sliding window.
package collection
