// Package config provides configuration management for the leapflow
// PostHog provider CLI.
//
// Configuration is loaded from leapflow.yaml, LEAPFLOW_ environment
// variables and command flags, in ascending precedence. Paths in the
// file resolve relative to the project root, which is found by an
// upward search for the config file.
package config

import (
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

// RelayConfig holds configuration for the relay daemon.
type RelayConfig struct {
	Port          int    `koanf:"port"`
	Watch         bool   `koanf:"watch"`
	AdminToken    string `koanf:"admin_token"`
	SessionSecret string `koanf:"session_secret"`
}

// DefaultRelayConfig returns a RelayConfig with default values.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Port:  8765,
		Watch: true,
	}
}

// GetRelayConfig returns the relay config with defaults applied for any
// unset values.
func (c *Config) GetRelayConfig() *RelayConfig {
	if c.Relay == nil {
		return DefaultRelayConfig()
	}
	relay := c.Relay
	if relay.Port == 0 {
		relay.Port = 8765
	}
	return relay
}

// Config holds all CLI configuration options.
type Config struct {
	ConnectionsFile string               `koanf:"connections_file"`
	Metastore       string               `koanf:"metastore"`
	SpoolPath       string               `koanf:"spool_path"`
	TransformsDir   string               `koanf:"transforms_dir"`
	DocsDir         string               `koanf:"docs_dir"`
	ConnID          string               `koanf:"conn_id"`
	Environment     string               `koanf:"environment"`
	Verbose         bool                 `koanf:"verbose"`
	OutputFormat    string               `koanf:"output"`
	Relay           *RelayConfig         `koanf:"relay"`
	Environments    map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory paths resolve against. Set by the
	// loader, never read from the file.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	ConnectionsFile string       `koanf:"connections_file"`
	SpoolPath       string       `koanf:"spool_path"`
	TransformsDir   string       `koanf:"transforms_dir"`
	ConnID          string       `koanf:"conn_id"`
	Relay           *RelayConfig `koanf:"relay"`
}

// Default configuration values.
const (
	DefaultConnectionsFile = "connections.yaml"
	DefaultMetastoreFile   = ".leapflow/metastore.db"
	DefaultSpoolFile       = ".leapflow/spool.db"
	DefaultTransformsDir   = "transforms"
	DefaultDocsDir         = "docs-site"
	DefaultConnID          = phposthog.DefaultConnID
	DefaultEnv             = "dev"
	DefaultOutput          = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)
