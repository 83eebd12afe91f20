package collection

import (
	"sync"
	"time"
)

type sample struct {
	at          time.Time
	throughput  float64
	busySeconds float64
}

// Reading is the per-service roll-up of host samples over the window
type Reading struct {
	Instances  int
	DutyCycle  float64
	Throughput float64
}

// Collection accumulates per-host status samples and rolls them up into
// per-service readings over a sliding window.
type Collection struct {
	mu     sync.Mutex
	window time.Duration
	hosts  map[string]map[string][]sample

	now func() time.Time
}

// New creates a collection with the given window length
func New(window time.Duration) *Collection {
	return &Collection{
		window: window,
		hosts:  make(map[string]map[string][]sample),
		now:    time.Now,
	}
}

// Update records one host sample for a service
func (c *Collection) Update(service, host string, throughput, busySeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byHost := c.hosts[service]
	if byHost == nil {
		byHost = make(map[string][]sample)
		c.hosts[service] = byHost
	}
	byHost[host] = append(byHost[host], sample{
		at:          c.now(),
		throughput:  throughput,
		busySeconds: busySeconds,
	})
}

// Read rolls up the samples for a service still inside the window. The
// second return is false when no host has reported recently.
func (c *Collection) Read(service string) (Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byHost := c.hosts[service]
	if byHost == nil {
		return Reading{}, false
	}

	cutoff := c.now().Add(-c.window)
	var reading Reading
	var busy float64

	for host, samples := range byHost {
		kept := samples[:0]
		for _, s := range samples {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(byHost, host)
			continue
		}
		byHost[host] = kept
		reading.Instances++
		for _, s := range kept {
			busy += s.busySeconds
			reading.Throughput += s.throughput
		}
	}
	if reading.Instances == 0 {
		delete(c.hosts, service)
		return Reading{}, false
	}

	// Duty cycle is the busy fraction of the observed window per host
	reading.DutyCycle = busy / (c.window.Seconds() * float64(reading.Instances))
	if reading.DutyCycle > 1 {
		reading.DutyCycle = 1
	}
	return reading, true
}

// Forget drops all samples for a service
func (c *Collection) Forget(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hosts, service)
}
