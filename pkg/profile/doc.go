// Package profile implements the per-service scaling controller: a leaky
// pressure accumulator with hysteresis that steps the desired instance
// count one replica at a time, and the registry that serializes access
// to the full profile set.
package profile
