package catalog

import (
	"github.com/cuemby/scaled/pkg/types"
)

// Store is the persistent service catalog consulted by the synchronizer.
// Implementations must be safe for concurrent use.
type Store interface {
	// Services
	ListAllServices() ([]*types.Service, error)
	GetService(name string) (*types.Service, error)
	SaveService(service *types.Service) error
	DeleteService(name string) error

	// SetEnabled flips the enabled flag on a service record
	SetEnabled(name string, enabled bool) error

	// Service lifecycle stages
	GetStage(name string) (types.ServiceStage, error)
	SetStage(name string, stage types.ServiceStage) error

	// Utility
	Close() error
}
