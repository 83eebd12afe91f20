package controller

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Driver names selected at startup
const (
	DriverDocker     = "docker"
	DriverKubernetes = "kubernetes"
)

// ConfigMount describes a configuration asset projected into every
// service container (a config map key on kubernetes, a host path bind
// on docker).
type ConfigMount struct {
	Name       string
	ConfigMap  string
	Key        string
	TargetPath string
}

// Options carry everything a driver needs to construct itself
type Options struct {
	Logger       zerolog.Logger
	Namespace    string
	Labels       map[string]string
	ConfigMounts []ConfigMount
	// GlobalMounts are host-path bind mounts applied to every container
	// (docker driver only), source to target.
	GlobalMounts [][2]string
	// Overallocation factors applied to the reported resource pool
	CPUOverallocation    float64
	MemoryOverallocation float64
}

// DriverFunc constructs a concrete orchestrator driver
type DriverFunc func(opts Options) (Controller, error)

var (
	driversMu sync.Mutex
	drivers   = make(map[string]DriverFunc)
)

// Register makes a driver available to Open. Drivers register from their
// own packages, the way database/sql drivers do.
func Register(name string, fn DriverFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("controller: Register called twice for driver " + name)
	}
	drivers[name] = fn
}

// Open constructs the named driver
func Open(name string, opts Options) (Controller, error) {
	driversMu.Lock()
	fn, ok := drivers[name]
	driversMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown controller driver %q (registered: %v)", name, registered())
	}
	return fn(opts)
}

func registered() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
