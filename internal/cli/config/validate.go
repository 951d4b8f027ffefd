package config

import (
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ConnID == "" {
		return fmt.Errorf("conn_id is required")
	}

	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("invalid output format %q (want auto, text, markdown or json)", c.OutputFormat)
	}

	if c.Relay != nil {
		if c.Relay.Port < 0 || c.Relay.Port > 65535 {
			return fmt.Errorf("relay port %d out of range", c.Relay.Port)
		}
	}

	// Directory existence is checked per command so that help and
	// one-off sends work without a scaffolded project.
	return nil
}

// ValidateTransformsDir checks that the transforms directory exists.
func (c *Config) ValidateTransformsDir() error {
	if c.TransformsDir == "" {
		return nil
	}
	if _, err := os.Stat(c.TransformsDir); os.IsNotExist(err) {
		return fmt.Errorf("transforms directory does not exist: %s\nHint: Create the directory or use --transforms-dir to specify a different path", c.TransformsDir)
	}
	return nil
}

// ValidateConnectionsFile checks that the connections file exists.
func (c *Config) ValidateConnectionsFile() error {
	if _, err := os.Stat(c.ConnectionsFile); os.IsNotExist(err) {
		return fmt.Errorf("connections file does not exist: %s\nHint: Run 'leapflow-posthog init' or use --connections to specify a different path", c.ConnectionsFile)
	}
	return nil
}
