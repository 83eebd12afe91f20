package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/scaled/pkg/catalog"
	"github.com/cuemby/scaled/pkg/log"
)

const (
	// MaximumServiceErrors is how many errors a service may generate
	// inside the window before it is disabled
	MaximumServiceErrors = 5

	// ErrorExpiry is how long before an error is forgiven
	ErrorExpiry = time.Hour
)

// Tracker counts recent per-service failures and disables a service in
// the catalog once the threshold is reached. Core services are never
// auto-disabled, only logged.
type Tracker struct {
	mu      sync.Mutex
	window  map[string][]time.Time
	core    map[string]struct{}
	catalog catalog.Store
	logger  zerolog.Logger

	now func() time.Time
}

// New creates a tracker writing disables through the given catalog
func New(store catalog.Store) *Tracker {
	return &Tracker{
		window:  make(map[string][]time.Time),
		core:    make(map[string]struct{}),
		catalog: store,
		logger:  log.WithComponent("tracker"),
		now:     time.Now,
	}
}

// MarkCore registers services that must keep retrying forever
func (t *Tracker) MarkCore(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range names {
		t.core[name] = struct{}{}
	}
}

// Report records one failure for a service. When an analysis service has
// accumulated MaximumServiceErrors within ErrorExpiry it is disabled in
// the catalog and its window cleared.
func (t *Tracker) Report(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, isCore := t.core[service]; isCore {
		t.logger.Error().Str("service", service).Msg("Error in core service")
		return
	}

	now := t.now()
	cutoff := now.Add(-ErrorExpiry)
	kept := t.window[service][:0]
	for _, at := range t.window[service] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	t.window[service] = kept

	if len(kept) < MaximumServiceErrors {
		return
	}

	t.logger.Warn().
		Str("service", service).
		Int("errors", len(kept)).
		Msg("Error threshold reached, disabling service")

	if err := t.catalog.SetEnabled(service, false); err != nil {
		t.logger.Error().Err(err).Str("service", service).Msg("Failed to disable service")
	}
	delete(t.window, service)
}

// Forget clears the window for a service
func (t *Tracker) Forget(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.window, service)
}
