package types

// ServiceStage represents the lifecycle phase of a managed service
type ServiceStage string

const (
	StageOff     ServiceStage = "off"
	StageUpdate  ServiceStage = "update"
	StageRunning ServiceStage = "running"
)

// HostState represents the reported state of a single service host
type HostState string

const (
	HostStateRunning HostState = "running"
	HostStateIdle    HostState = "idle"
)

// EnvVar is a single environment entry in a container config
type EnvVar struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// ContainerConfig describes how to launch one container of a service.
// Two configs are considered equal only when every field matches.
type ContainerConfig struct {
	Image               string   `yaml:"image" json:"image"`
	Command             []string `yaml:"command,omitempty" json:"command,omitempty"`
	Environment         []EnvVar `yaml:"environment,omitempty" json:"environment,omitempty"`
	CPUCores            float64  `yaml:"cpu_cores" json:"cpu_cores"`
	RAMMB               int64    `yaml:"ram_mb" json:"ram_mb"`
	AllowInternetAccess bool     `yaml:"allow_internet_access" json:"allow_internet_access"`
}

// Equal reports whether two container configs match field for field
func (c ContainerConfig) Equal(other ContainerConfig) bool {
	if c.Image != other.Image ||
		c.CPUCores != other.CPUCores ||
		c.RAMMB != other.RAMMB ||
		c.AllowInternetAccess != other.AllowInternetAccess {
		return false
	}
	if len(c.Command) != len(other.Command) || len(c.Environment) != len(other.Environment) {
		return false
	}
	for i := range c.Command {
		if c.Command[i] != other.Command[i] {
			return false
		}
	}
	for i := range c.Environment {
		if c.Environment[i] != other.Environment[i] {
			return false
		}
	}
	return true
}

// SubmissionParam is a user-tunable parameter declared by a service.
// Changing any of these requires a service restart, so they are folded
// into the service config hash.
type SubmissionParam struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Default string `yaml:"default" json:"default"`
}

// UpdateConfig controls how a service is brought up to date
type UpdateConfig struct {
	WaitForUpdate bool `yaml:"wait_for_update" json:"wait_for_update"`
}

// Service is a catalog entry for one managed analysis service
type Service struct {
	Name             string                     `yaml:"name" json:"name"`
	Enabled          bool                       `yaml:"enabled" json:"enabled"`
	ContainerConfig  ContainerConfig            `yaml:"container_config" json:"container_config"`
	Dependencies     map[string]ContainerConfig `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	UpdateConfig     *UpdateConfig              `yaml:"update_config,omitempty" json:"update_config,omitempty"`
	Config           map[string]string          `yaml:"config,omitempty" json:"config,omitempty"`
	SubmissionParams []SubmissionParam          `yaml:"submission_params,omitempty" json:"submission_params,omitempty"`
	LicenceCount     int                        `yaml:"licence_count" json:"licence_count"`
	TimeoutSeconds   int                        `yaml:"timeout_seconds" json:"timeout_seconds"`
}
