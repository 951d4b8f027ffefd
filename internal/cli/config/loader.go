package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// findConfigFile finds the config file to use.
// Priority: explicit path > leapflow.yaml > leapflow.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("leapflow.yaml"); err == nil {
		return "leapflow.yaml"
	}
	if _, err := os.Stat("leapflow.yml"); err == nil {
		return "leapflow.yml"
	}
	return ""
}

// configExistsIn checks if a leapflow config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{"leapflow.yaml", "leapflow.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRootUpward searches upward from startDir for a leapflow config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Explicit --project-dir flag
//  2. Infer from --transforms-dir (parent if it contains a config or is named "transforms")
//  3. Search upward from CWD for leapflow.yaml
//  4. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	// 1. Check explicit --project-dir
	if flags != nil {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" && flags.Changed("project-dir") {
			abs, err := filepath.Abs(projectDir)
			if err == nil {
				return abs
			}
			return filepath.Clean(projectDir)
		}
	}

	// 2. Infer from --transforms-dir
	if flags != nil {
		if transformsDir, _ := flags.GetString("transforms-dir"); transformsDir != "" && flags.Changed("transforms-dir") {
			absTransforms, err := filepath.Abs(transformsDir)
			if err == nil {
				parent := filepath.Dir(absTransforms)

				// If parent has a config file, it's the project root
				if configExistsIn(parent) {
					return parent
				}

				// If folder is named "transforms", assume parent is root
				if filepath.Base(absTransforms) == "transforms" {
					return parent
				}
			}
		}
	}

	// 3. Search upward from CWD for leapflow.yaml
	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}

	// 4. Default to CWD
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// isFileDSN reports whether the metastore DSN is a filesystem path
// rather than a server DSN or the in-memory marker.
func isFileDSN(dsn string) bool {
	if dsn == "" || dsn == ":memory:" {
		return false
	}
	return !strings.Contains(dsn, "://")
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithEnv(cfgFile, "", flags)
}

// LoadConfigWithEnv loads configuration with an optional environment override.
// The envOverride parameter selects which environments block to merge.
// The flags parameter allows CLI flags to override config file and env var values.
func LoadConfigWithEnv(cfgFile string, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// Infer project root from flags before loading config. This enables
	// the anchor pattern where --transforms-dir testdata/transforms
	// implies project root is testdata/
	projectRoot := inferProjectRoot(flags)

	// Track paths that were explicitly provided as flags (already relative to CWD).
	// These will be converted to absolute paths before the normal resolution step,
	// to prevent double-resolution when project root was inferred from them.
	var flagConnectionsFile, flagTransformsDir, flagSpoolPath, flagMetastore, flagDocsDir string
	if flags != nil {
		if flags.Changed("connections") {
			if v, _ := flags.GetString("connections"); v != "" {
				flagConnectionsFile, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("transforms-dir") {
			if v, _ := flags.GetString("transforms-dir"); v != "" {
				flagTransformsDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("spool") {
			if v, _ := flags.GetString("spool"); v != "" {
				flagSpoolPath, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("metastore") {
			if v, _ := flags.GetString("metastore"); v != "" {
				// The metastore can be :memory: or a postgres DSN
				if isFileDSN(v) {
					flagMetastore, _ = filepath.Abs(v)
				} else {
					flagMetastore = v
				}
			}
		}
		if flags.Changed("docs-dir") {
			if v, _ := flags.GetString("docs-dir"); v != "" {
				flagDocsDir, _ = filepath.Abs(v)
			}
		}
	}

	// If an explicit config file is provided, use its directory as project root
	// (unless a more specific hint was given via flags)
	if cfgFile != "" && projectRoot == inferProjectRoot(nil) {
		// No flag-based inference happened, use config file's directory
		if absPath, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(absPath)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"connections_file": DefaultConnectionsFile,
		"metastore":        DefaultMetastoreFile,
		"spool_path":       DefaultSpoolFile,
		"transforms_dir":   DefaultTransformsDir,
		"docs_dir":         DefaultDocsDir,
		"conn_id":          DefaultConnID,
		"environment":      DefaultEnv,
		"verbose":          false,
		"output":           DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	// Search in project root if no explicit config file provided
	if cfgFile == "" {
		for _, name := range []string{"leapflow.yaml", "leapflow.yml"} {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (LEAPFLOW_ prefix)
	// Transform: LEAPFLOW_SPOOL_PATH -> spool_path
	if err := k.Load(env.Provider("LEAPFLOW_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LEAPFLOW_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// EXPLICIT MAPPING: short flag names to longer config keys.
			// The CLI uses --connections, --spool and --conn for brevity.
			switch key {
			case "connections":
				return "connections_file", posflag.FlagVal(flags, f)
			case "spool":
				return "spool_path", posflag.FlagVal(flags, f)
			case "conn":
				return "conn_id", posflag.FlagVal(flags, f)
			case "env":
				return "environment", posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Set project root and resolve relative paths
	// Use project root as base for all path resolution (not config file directory)
	cfg.ProjectRoot = projectRoot

	// For paths explicitly provided via flags, use the pre-computed absolute paths
	// (already computed relative to CWD at flag parse time).
	// For paths from config file or defaults, resolve relative to project root.
	if flagConnectionsFile != "" {
		cfg.ConnectionsFile = flagConnectionsFile
	} else {
		cfg.ConnectionsFile = resolvePathRelativeTo(cfg.ConnectionsFile, projectRoot)
	}
	if flagTransformsDir != "" {
		cfg.TransformsDir = flagTransformsDir
	} else {
		cfg.TransformsDir = resolvePathRelativeTo(cfg.TransformsDir, projectRoot)
	}
	if flagSpoolPath != "" {
		cfg.SpoolPath = flagSpoolPath
	} else {
		cfg.SpoolPath = resolvePathRelativeTo(cfg.SpoolPath, projectRoot)
	}
	if flagMetastore != "" {
		cfg.Metastore = flagMetastore
	} else if isFileDSN(cfg.Metastore) {
		cfg.Metastore = resolvePathRelativeTo(cfg.Metastore, projectRoot)
	}
	if flagDocsDir != "" {
		cfg.DocsDir = flagDocsDir
	} else {
		cfg.DocsDir = resolvePathRelativeTo(cfg.DocsDir, projectRoot)
	}

	// Determine which environment block to merge
	envName := cfg.Environment
	if envOverride != "" {
		envName = envOverride
		cfg.Environment = envOverride
	}

	// Apply environment-specific overrides if an environment is selected
	if envName != "" && cfg.Environments != nil {
		if envCfg, ok := cfg.Environments[envName]; ok {
			if envCfg.ConnectionsFile != "" {
				cfg.ConnectionsFile = resolvePathRelativeTo(envCfg.ConnectionsFile, projectRoot)
			}
			if envCfg.SpoolPath != "" {
				cfg.SpoolPath = resolvePathRelativeTo(envCfg.SpoolPath, projectRoot)
			}
			if envCfg.TransformsDir != "" {
				cfg.TransformsDir = resolvePathRelativeTo(envCfg.TransformsDir, projectRoot)
			}
			if envCfg.ConnID != "" {
				cfg.ConnID = envCfg.ConnID
			}
			if envCfg.Relay != nil {
				cfg.Relay = MergeRelayConfig(cfg.Relay, envCfg.Relay)
			}
		}
	}

	// Expand environment variables in secrets
	expandRelayEnvVars(cfg.Relay)
	cfg.Metastore = expandEnvVars(cfg.Metastore)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig or LoadConfigWithEnv is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	// Match ${VAR} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandRelayEnvVars expands environment variables in sensitive relay fields.
func expandRelayEnvVars(r *RelayConfig) {
	if r == nil {
		return
	}
	r.AdminToken = expandEnvVars(r.AdminToken)
	r.SessionSecret = expandEnvVars(r.SessionSecret)
}

// MergeRelayConfig merges two relay configs, with override taking precedence.
func MergeRelayConfig(base, override *RelayConfig) *RelayConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := &RelayConfig{
		Port:          base.Port,
		Watch:         base.Watch,
		AdminToken:    base.AdminToken,
		SessionSecret: base.SessionSecret,
	}

	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Watch {
		merged.Watch = true
	}
	if override.AdminToken != "" {
		merged.AdminToken = override.AdminToken
	}
	if override.SessionSecret != "" {
		merged.SessionSecret = override.SessionSecret
	}

	return merged
}
