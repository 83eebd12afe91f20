package scaler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/scaled/pkg/catalog"
	"github.com/cuemby/scaled/pkg/collection"
	"github.com/cuemby/scaled/pkg/config"
	"github.com/cuemby/scaled/pkg/controller"
	"github.com/cuemby/scaled/pkg/kv"
	"github.com/cuemby/scaled/pkg/log"
	"github.com/cuemby/scaled/pkg/metrics"
	"github.com/cuemby/scaled/pkg/profile"
	"github.com/cuemby/scaled/pkg/tracker"
)

// Worker cadences
const (
	serviceSyncInterval     = 30 * time.Second
	scaleInterval           = 5 * time.Second
	metricSyncInterval      = 500 * time.Millisecond
	statusFlushInterval     = 5 * time.Second
	containerEventsInterval = 2 * time.Second
	supervisorInterval      = 2 * time.Second

	// How long a worker join may take during shutdown
	shutdownGrace = 30 * time.Second

	// A status entry expired longer than this marks a retired host
	staleStatusGrace = 600 * time.Second

	// Blocking wait on the timeout queue
	timeoutPopWait = time.Second

	// Bound on concurrent controller writes
	writePoolSize = 10
)

// StatusTable is the shared host status hash consumed by the ingestor
// and the janitor
type StatusTable interface {
	Items(ctx context.Context) (map[string]kv.StatusEntry, error)
	Keys(ctx context.Context) ([]string, error)
	Pop(ctx context.Context, host string) error
}

// TimeoutQueue delivers requests to kill timed-out containers
type TimeoutQueue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// QueueLookup resolves the work queue handle for a service
type QueueLookup func(service string) profile.Queue

// Scaler is the autoscaling control plane: it owns the profile registry
// and runs the long-lived workers that keep replica targets converged
// with observed load.
type Scaler struct {
	cfg          *config.Config
	controller   controller.Controller
	catalog      catalog.Store
	registry     *profile.Registry
	tracker      *tracker.Tracker
	state        *collection.Collection
	statusTable  StatusTable
	timeoutQueue TimeoutQueue
	serviceQueue QueueLookup
	logger       zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// New assembles a scaler over its collaborators
func New(cfg *config.Config, ctrl controller.Controller, store catalog.Store,
	statusTable StatusTable, timeoutQueue TimeoutQueue, queues QueueLookup) *Scaler {
	return &Scaler{
		cfg:          cfg,
		controller:   ctrl,
		catalog:      store,
		registry:     profile.NewRegistry(),
		tracker:      tracker.New(store),
		state:        collection.New(cfg.Metrics.ExportInterval),
		statusTable:  statusTable,
		timeoutQueue: timeoutQueue,
		serviceQueue: queues,
		logger:       log.WithComponent("scaler"),
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
}

// Registry exposes the profile registry
func (s *Scaler) Registry() *profile.Registry {
	return s.registry
}

// Tracker exposes the error tracker
func (s *Scaler) Tracker() *tracker.Tracker {
	return s.tracker
}

// Stop signals every worker to wind down
func (s *Scaler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// running reports whether the stop flag is still clear
func (s *Scaler) running() bool {
	select {
	case <-s.stopCh:
		return false
	default:
		return true
	}
}

// sleep waits for d or until the stop flag is raised, returning false
// when the scaler is stopping. This is the only sleep workers use.
func (s *Scaler) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// addService seeds a new profile from the orchestrator's persisted
// target and registers it with the controller. Callers must not hold
// the registry lock.
func (s *Scaler) addService(p *profile.Profile) error {
	target := s.controller.GetTarget(p.Name)
	p.DesiredInstances = max(target, p.MinInstances)
	p.RunningInstances = p.DesiredInstances
	p.LastUpdate = s.now()

	if err := s.registry.Add(p); err != nil {
		return err
	}
	s.logger.Debug().
		Str("service", p.Name).
		Int("target", p.DesiredInstances).
		Msg("Starting service scaling")

	if err := s.controller.AddProfile(p); err != nil {
		return controller.NewServiceControlError(p.Name, err)
	}
	return nil
}

// reportError records a failure, attributing service control errors to
// the offending service. Never called with the registry lock held.
func (s *Scaler) reportError(err error) {
	var sce *controller.ServiceControlError
	if errors.As(err, &sce) {
		s.logger.Error().Err(err).Str("service", sce.ServiceName).Msg("Service control failure")
		metrics.ServiceErrorsTotal.WithLabelValues(sce.ServiceName).Inc()
		s.tracker.Report(sce.ServiceName)
		return
	}
	s.logger.Error().Err(err).Msg("Scaler failure")
}
