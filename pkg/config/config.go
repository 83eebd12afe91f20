package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/scaled/pkg/types"
)

// Environment variables honored at load time
const (
	EnvKubernetesConfig        = "KUBERNETES_AL_CONFIG"
	EnvNamespace               = "NAMESPACE"
	EnvHostname                = "HOSTNAME"
	EnvClassificationHostPath  = "CLASSIFICATION_HOST_PATH"
	EnvClassificationConfigMap = "CLASSIFICATION_CONFIGMAP"
	EnvClassificationKey       = "CLASSIFICATION_CONFIGMAP_KEY"
)

// ServiceDefaults hold the scaling parameters applied to newly discovered services
type ServiceDefaults struct {
	MinInstances int            `yaml:"min_instances"`
	Growth       float64        `yaml:"growth"`
	Shrink       float64        `yaml:"shrink"`
	Backlog      int            `yaml:"backlog"`
	Environment  []types.EnvVar `yaml:"environment,omitempty"`
}

// ScalerConfig groups the control loop settings
type ScalerConfig struct {
	ServiceDefaults      ServiceDefaults `yaml:"service_defaults"`
	CPUOverallocation    float64         `yaml:"cpu_overallocation"`
	MemoryOverallocation float64         `yaml:"memory_overallocation"`
}

// RedisConfig points at the two redis instances backing the KV substrate.
// Persist holds durable queues, the other holds volatile state.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PersistAddr string `yaml:"persist_addr"`
	DB          int    `yaml:"db"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	ExportInterval time.Duration `yaml:"export_interval"`
	ListenAddr     string        `yaml:"listen_addr"`
}

// UnmarshalYAML accepts go duration strings for the export interval
func (m *MetricsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ExportInterval string `yaml:"export_interval"`
		ListenAddr     string `yaml:"listen_addr"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ExportInterval != "" {
		d, err := time.ParseDuration(raw.ExportInterval)
		if err != nil {
			return fmt.Errorf("invalid export_interval: %w", err)
		}
		m.ExportInterval = d
	}
	if raw.ListenAddr != "" {
		m.ListenAddr = raw.ListenAddr
	}
	return nil
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full scaled configuration
type Config struct {
	Namespace      string            `yaml:"namespace"`
	Hostname       string            `yaml:"-"`
	DataDir        string            `yaml:"data_dir"`
	ImageVariables map[string]string `yaml:"image_variables,omitempty"`
	Redis          RedisConfig       `yaml:"redis"`
	Scaler         ScalerConfig      `yaml:"scaler"`
	Metrics        MetricsConfig     `yaml:"metrics"`
	Log            LogConfig         `yaml:"log"`

	// Kubernetes driver selection and classification mounts
	KubernetesConfig        string `yaml:"-"`
	ClassificationHostPath  string `yaml:"-"`
	ClassificationConfigMap string `yaml:"-"`
	ClassificationKey       string `yaml:"-"`
}

// Default returns the configuration used when no file is provided
func Default() *Config {
	return &Config{
		Namespace: "al",
		DataDir:   "/var/lib/scaled",
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PersistAddr: "localhost:6380",
		},
		Scaler: ScalerConfig{
			ServiceDefaults: ServiceDefaults{
				MinInstances: 0,
				Growth:       600,
				Backlog:      500,
			},
			CPUOverallocation:    1,
			MemoryOverallocation: 1,
		},
		Metrics: MetricsConfig{
			ExportInterval: 5 * time.Second,
			ListenAddr:     ":9511",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the config file at path, if any, and applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Scaler.ServiceDefaults.Shrink == 0 {
		cfg.Scaler.ServiceDefaults.Shrink = cfg.Scaler.ServiceDefaults.Growth / 2
	}
	if cfg.Metrics.ExportInterval <= 0 {
		cfg.Metrics.ExportInterval = 5 * time.Second
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvNamespace); v != "" {
		c.Namespace = v
	}
	c.Hostname = os.Getenv(EnvHostname)
	if c.Hostname == "" {
		c.Hostname, _ = os.Hostname()
	}
	c.KubernetesConfig = os.Getenv(EnvKubernetesConfig)
	c.ClassificationHostPath = os.Getenv(EnvClassificationHostPath)
	c.ClassificationConfigMap = os.Getenv(EnvClassificationConfigMap)
	c.ClassificationKey = os.Getenv(EnvClassificationKey)
	if c.ClassificationKey == "" {
		c.ClassificationKey = "classification.yml"
	}
}
