package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/config"
	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/internal/connections"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Chain    *connections.Chain
	File     *connections.FileSource
	Meta     *connections.Metastore
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with the full connection
// resolver chain: environment variables, the connections file, then the
// metastore. Returns the context and a cleanup function that must be
// called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutStores(cmd)

	file, err := connections.NewFileSource(cc.Cfg.ConnectionsFile, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	meta, err := openMetastore(cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	cc.File = file
	cc.Meta = meta
	cc.Chain = connections.NewChain(cc.Logger, connections.EnvSource{}, file, meta)

	cleanup := func() {
		_ = meta.Close()
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutStores creates a CommandContext without
// opening any store. Useful for commands that only need config and
// rendering.
func NewCommandContextWithoutStores(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.ParseMode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	connectionsFile := getEnvOrDefault("LEAPFLOW_CONNECTIONS_FILE", config.DefaultConnectionsFile)
	metastore := getEnvOrDefault("LEAPFLOW_METASTORE", config.DefaultMetastoreFile)
	spoolPath := getEnvOrDefault("LEAPFLOW_SPOOL_PATH", config.DefaultSpoolFile)
	transformsDir := getEnvOrDefault("LEAPFLOW_TRANSFORMS_DIR", config.DefaultTransformsDir)
	docsDir := getEnvOrDefault("LEAPFLOW_DOCS_DIR", config.DefaultDocsDir)
	connID := getEnvOrDefault("LEAPFLOW_CONN_ID", config.DefaultConnID)
	environment := getEnvOrDefault("LEAPFLOW_ENVIRONMENT", config.DefaultEnv)
	verbose := os.Getenv("LEAPFLOW_VERBOSE") == "true"
	outputFormat := os.Getenv("LEAPFLOW_OUTPUT")

	return &config.Config{
		ConnectionsFile: connectionsFile,
		Metastore:       metastore,
		SpoolPath:       spoolPath,
		TransformsDir:   transformsDir,
		DocsDir:         docsDir,
		ConnID:          connID,
		Environment:     environment,
		Verbose:         verbose,
		OutputFormat:    outputFormat,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// openMetastore opens the metastore, creating the parent directory for
// file-backed stores first.
func openMetastore(cfg *config.Config, logger *slog.Logger) (*connections.Metastore, error) {
	dsn := cfg.Metastore
	if connections.DriverFor(dsn) == "sqlite" && dsn != ":memory:" {
		if err := ensureParentDir(dsn); err != nil {
			return nil, err
		}
	}
	return connections.OpenMetastore(dsn, logger)
}

// openSpool opens the spool store, creating the parent directory first.
func openSpool(cfg *config.Config, logger *slog.Logger) (*spool.Store, error) {
	if err := ensureParentDir(cfg.SpoolPath); err != nil {
		return nil, err
	}
	return spool.Open(cfg.SpoolPath, logger)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
