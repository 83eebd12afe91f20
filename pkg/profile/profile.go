package profile

import (
	"context"
	"math"
	"time"

	"github.com/cuemby/scaled/pkg/types"
)

// Defaults applied when a parameter is left unset
const (
	defaultGrowth           = 600.0
	defaultLeakRate         = 0.1
	defaultBacklogReference = 500
	defaultTargetDutyCycle  = 0.9
)

// Queue exposes the backlog depth of a service work queue
type Queue interface {
	Length(ctx context.Context) (int, error)
}

// Params configure a new profile. Zero values fall back to defaults;
// MaxInstances 0 means unbounded.
type Params struct {
	ConfigHash      uint64
	MinInstances    int
	MaxInstances    int
	Growth          float64
	Shrink          float64
	Backlog         int
	Queue           Queue
	ShutdownSeconds int
}

// Profile holds the controller state for one managed service: how it
// should be run, and the accumulated pressure driving its scaling.
// All mutation happens under the owning Registry's lock.
type Profile struct {
	Name            string
	ContainerConfig types.ContainerConfig
	ConfigHash      uint64
	Queue           Queue
	ShutdownSeconds int

	// Instance bounds. minFloor is configured, MinInstances is the
	// effective minimum (raised to 1 while there is a backlog).
	// maxCap 0 means unbounded.
	minFloor     int
	maxCap       int
	MinInstances int

	DesiredInstances int
	RunningInstances int

	// Pressure accumulates the backlog and duty cycle signals; crossing
	// a threshold fires a single-step scale event and resets it.
	Pressure        float64
	GrowthThreshold float64
	ShrinkThreshold float64
	LeakRate        float64

	BacklogReference int
	TargetDutyCycle  float64

	// Last observed samples
	QueueLength int
	DutyCycle   float64
	LastUpdate  time.Time

	now func() time.Time
}

// New builds a profile for the named service
func New(name string, cfg types.ContainerConfig, p Params) *Profile {
	growth := p.Growth
	if growth <= 0 {
		growth = defaultGrowth
	}
	shrink := -growth / 2
	if p.Shrink != 0 {
		shrink = -math.Abs(p.Shrink)
	}
	backlog := p.Backlog
	if backlog <= 0 {
		backlog = defaultBacklogReference
	}
	minInstances := p.MinInstances
	if minInstances < 0 {
		minInstances = 0
	}
	maxCap := p.MaxInstances
	if maxCap < 0 {
		maxCap = 0
	}

	return &Profile{
		Name:             name,
		ContainerConfig:  cfg,
		ConfigHash:       p.ConfigHash,
		Queue:            p.Queue,
		ShutdownSeconds:  p.ShutdownSeconds,
		minFloor:         minInstances,
		maxCap:           maxCap,
		MinInstances:     minInstances,
		GrowthThreshold:  math.Abs(growth),
		ShrinkThreshold:  shrink,
		LeakRate:         defaultLeakRate,
		BacklogReference: backlog,
		TargetDutyCycle:  defaultTargetDutyCycle,
		now:              time.Now,
	}
}

// CPU returns the per-instance CPU requirement
func (p *Profile) CPU() float64 {
	return p.ContainerConfig.CPUCores
}

// RAM returns the per-instance memory requirement in MB
func (p *Profile) RAM() int64 {
	return p.ContainerConfig.RAMMB
}

// InstanceLimit reports the configured hard cap, 0 meaning no cap
func (p *Profile) InstanceLimit() int {
	return p.maxCap
}

// SetInstanceLimit replaces the configured hard cap, 0 meaning no cap
func (p *Profile) SetInstanceLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	p.maxCap = limit
}

// MaxInstances is the effective ceiling: the configured cap bounded to
// two above the running count, so demands never run far ahead of what
// the cluster has actually delivered.
func (p *Profile) MaxInstances() int {
	dynamic := p.RunningInstances + 2
	if p.maxCap == 0 || dynamic < p.maxCap {
		return dynamic
	}
	return p.maxCap
}

// Update feeds one observation into the pressure controller. delta is
// the time in seconds since the previous update.
func (p *Profile) Update(delta float64, instances, backlog int, dutyCycle float64) {
	p.LastUpdate = p.now()
	p.RunningInstances = instances
	p.QueueLength = backlog
	p.DutyCycle = dutyCycle

	// A non-empty queue forces at least one instance even for services
	// configured to idle at zero
	p.MinInstances = p.minFloor
	if backlog > 0 && p.MinInstances < 1 {
		p.MinInstances = 1
	}
	p.DesiredInstances = clamp(p.DesiredInstances, p.MinInstances, p.MaxInstances())

	// Backlog pushes up; the square root softens the response to very
	// long queues
	p.Pressure += delta * math.Sqrt(float64(backlog)/float64(p.BacklogReference))

	// Idle workers relative to the target duty cycle push down
	p.Pressure -= delta * (p.TargetDutyCycle - dutyCycle) / p.TargetDutyCycle

	// Leak toward zero so a steady state settles instead of oscillating
	leak := math.Min(p.LeakRate*delta, math.Abs(p.Pressure))
	p.Pressure = math.Copysign(math.Abs(p.Pressure)-leak, p.Pressure)

	// At the floor, negative pressure must not accumulate or the first
	// real load would have to pay it off before scaling up
	if p.DesiredInstances == p.MinInstances && p.Pressure < 0 {
		p.Pressure = 0
	}

	if p.Pressure >= p.GrowthThreshold {
		p.DesiredInstances = min(p.MaxInstances(), p.DesiredInstances+1)
		p.Pressure = 0
	}

	if p.Pressure <= p.ShrinkThreshold {
		p.DesiredInstances = max(p.MinInstances, p.DesiredInstances-1)
		p.Pressure = 0
	}
}

// ServiceName implements controller.Profile
func (p *Profile) ServiceName() string {
	return p.Name
}

// Config implements controller.Profile
func (p *Profile) Config() types.ContainerConfig {
	return p.ContainerConfig
}

// GraceSeconds implements controller.Profile
func (p *Profile) GraceSeconds() int {
	return p.ShutdownSeconds
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
