package controller

import (
	"fmt"

	"github.com/cuemby/scaled/pkg/types"
)

// Profile is the view of a service profile the orchestrator driver needs
// to register and restart deployments.
type Profile interface {
	ServiceName() string
	Config() types.ContainerConfig
	GraceSeconds() int
}

// Controller is the orchestrator driver the scaler issues intents to.
// Calls may perform network I/O and must be treated as potentially slow.
type Controller interface {
	// Deployment management
	AddProfile(p Profile) error
	Restart(p Profile) error
	StopContainer(service, container string) error
	StopContainers(labels map[string]string) error

	// Persistent per-service replica intent
	GetTarget(name string) int
	SetTarget(name string, target int) error

	// Cluster-wide resource pool
	FreeCPU() float64
	FreeMemory() int64
	CPUInfo() (free, total float64)
	MemoryInfo() (free, total int64)

	// Observation
	GetRunningContainerNames() map[string]struct{}
	NewEvents() []string

	// Service bootstrap
	PrepareNetwork(service string, allowInternet bool) error
	StartStatefulContainer(service, container string, spec types.ContainerConfig, labels map[string]string) error

	Stop()
}

// ServiceControlError is a per-service orchestrator failure. The scaler
// recovers locally and records it against the offending service.
type ServiceControlError struct {
	ServiceName string
	Cause       error
}

func (e *ServiceControlError) Error() string {
	return fmt.Sprintf("service control failure for %s: %v", e.ServiceName, e.Cause)
}

func (e *ServiceControlError) Unwrap() error {
	return e.Cause
}

// NewServiceControlError wraps a driver failure with the service it affects
func NewServiceControlError(service string, cause error) *ServiceControlError {
	return &ServiceControlError{ServiceName: service, Cause: cause}
}
