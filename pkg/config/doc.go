// Package config loads the scaled YAML configuration and environment overrides.
package config
