package scaler

import (
	"fmt"
	"hash/fnv"
	"os"
	"sort"

	"github.com/cuemby/scaled/pkg/controller"
	"github.com/cuemby/scaled/pkg/metrics"
	"github.com/cuemby/scaled/pkg/profile"
	"github.com/cuemby/scaled/pkg/types"
)

// Extra seconds a service gets past its task timeout to upload results
const shutdownPadding = 30

// syncServices reconciles the profile set with the service catalog
func (s *Scaler) syncServices() {
	for {
		s.syncServicesOnce()
		if !s.sleep(serviceSyncInterval) {
			return
		}
	}
}

func (s *Scaler) syncServicesOnce() {
	services, err := s.catalog.ListAllServices()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list services")
		return
	}

	current := make(map[string]struct{})
	for _, name := range s.registry.Names() {
		current[name] = struct{}{}
	}

	discovered := make(map[string]struct{}, len(services))
	for _, service := range services {
		discovered[service.Name] = struct{}{}
		if err := s.syncService(service); err != nil {
			s.reportError(controller.NewServiceControlError(service.Name, err))
		}
	}

	// Services we are scaling that are no longer in the catalog
	for name := range current {
		if _, ok := discovered[name]; ok {
			continue
		}
		stage, err := s.catalog.GetStage(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("service", name).Msg("Failed to read service stage")
			continue
		}
		if err := s.stopService(name, stage); err != nil {
			s.reportError(controller.NewServiceControlError(name, err))
		}
	}

	metrics.SyncCyclesTotal.Inc()
}

// syncService applies one catalog entry to the running state
func (s *Scaler) syncService(service *types.Service) error {
	stage, err := s.catalog.GetStage(service.Name)
	if err != nil {
		return fmt.Errorf("failed to read stage: %w", err)
	}

	if service.Enabled && stage == types.StageOff {
		stage, err = s.enableService(service)
		if err != nil {
			return err
		}
	}

	if !service.Enabled {
		return s.stopService(service.Name, stage)
	}

	if stage != types.StageRunning {
		return nil
	}

	configHash := serviceConfigHash(service)
	containerConfig := s.buildContainerConfig(service)

	prof := s.registry.Get(service.Name)
	if prof == nil {
		defaults := s.cfg.Scaler.ServiceDefaults
		s.logger.Info().Str("service", service.Name).Msg("Adding service to scaling")
		return s.addService(profile.New(service.Name, containerConfig, profile.Params{
			ConfigHash:   configHash,
			MinInstances: defaults.MinInstances,
			MaxInstances: service.LicenceCount,
			Growth:       defaults.Growth,
			Shrink:       defaults.Shrink,
			Backlog:      defaults.Backlog,
			Queue:        s.serviceQueue(service.Name),
			// Give the service extra time to upload results
			ShutdownSeconds: service.TimeoutSeconds + shutdownPadding,
		}))
	}

	var restartErr error
	s.registry.WithLock(func(profiles []*profile.Profile) {
		for _, p := range profiles {
			if p.Name != service.Name {
				continue
			}
			if !p.ContainerConfig.Equal(containerConfig) || p.ConfigHash != configHash {
				s.logger.Info().Str("service", service.Name).Msg("Updating deployment information")
				p.ContainerConfig = containerConfig
				p.ConfigHash = configHash
				if err := s.controller.Restart(p); err != nil {
					restartErr = fmt.Errorf("failed to restart: %w", err)
					return
				}
				s.logger.Info().Str("service", service.Name).Msg("Deployment information replaced")
			}
			p.SetInstanceLimit(service.LicenceCount)
			return
		}
	})
	return restartErr
}

// enableService prepares networking and dependencies for a service
// coming out of the off stage, and advances its stage.
func (s *Scaler) enableService(service *types.Service) (types.ServiceStage, error) {
	if err := s.controller.PrepareNetwork(service.Name, service.ContainerConfig.AllowInternetAccess); err != nil {
		return types.StageOff, fmt.Errorf("failed to prepare network: %w", err)
	}
	for name, spec := range service.Dependencies {
		err := s.controller.StartStatefulContainer(service.Name, name, spec, map[string]string{
			"dependency_for": service.Name,
		})
		if err != nil {
			return types.StageOff, fmt.Errorf("failed to start dependency %s: %w", name, err)
		}
	}

	stage := types.StageRunning
	if service.UpdateConfig != nil && service.UpdateConfig.WaitForUpdate {
		stage = types.StageUpdate
	}
	if err := s.catalog.SetStage(service.Name, stage); err != nil {
		return types.StageOff, fmt.Errorf("failed to set stage: %w", err)
	}
	return stage, nil
}

// stopService winds a service down: dependency containers are stopped,
// the stage record cleared, the target zeroed and the profile dropped.
func (s *Scaler) stopService(name string, stage types.ServiceStage) error {
	if stage != types.StageOff {
		if err := s.controller.StopContainers(map[string]string{"dependency_for": name}); err != nil {
			return fmt.Errorf("failed to stop dependencies: %w", err)
		}
		if err := s.catalog.SetStage(name, types.StageOff); err != nil {
			return fmt.Errorf("failed to set stage: %w", err)
		}
	}

	if s.registry.Get(name) != nil || s.controller.GetTarget(name) > 0 {
		s.logger.Info().Str("service", name).Msg("Removing service from scaling")
		if err := s.controller.SetTarget(name, 0); err != nil {
			return fmt.Errorf("failed to zero target: %w", err)
		}
		s.registry.Remove(name)
		s.state.Forget(name)
		metrics.RemoveService(name)
	}
	return nil
}

// buildContainerConfig expands image variables and merges the default
// environment into a service's container config
func (s *Scaler) buildContainerConfig(service *types.Service) types.ContainerConfig {
	cfg := service.ContainerConfig
	cfg.Image = expandImage(cfg.Image, s.cfg.ImageVariables)

	present := make(map[string]struct{}, len(cfg.Environment))
	for _, v := range cfg.Environment {
		present[v.Name] = struct{}{}
	}
	merged := make([]types.EnvVar, len(cfg.Environment))
	copy(merged, cfg.Environment)
	for _, v := range s.cfg.Scaler.ServiceDefaults.Environment {
		if _, ok := present[v.Name]; !ok {
			merged = append(merged, v)
		}
	}
	cfg.Environment = merged
	return cfg
}

// expandImage substitutes ${var} references, leaving unknown variables
// in place
func expandImage(image string, vars map[string]string) string {
	return os.Expand(image, func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return "${" + key + "}"
	})
}

// serviceConfigHash digests the service properties that are not part of
// the container config but still require a restart when changed
func serviceConfigHash(service *types.Service) uint64 {
	keys := make([]string, 0, len(service.Config))
	for k := range service.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, service.Config[k])
	}
	fmt.Fprintf(h, "%+v", service.SubmissionParams)
	return h.Sum64()
}
