// Package tracker keeps a sliding window of per-service failures and
// disables services that keep failing.
package tracker
