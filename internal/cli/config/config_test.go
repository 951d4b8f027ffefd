package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "leapflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "connections.yaml"), cfg.ConnectionsFile)
	assert.Equal(t, filepath.Join(tmpDir, ".leapflow/spool.db"), cfg.SpoolPath)
	assert.Equal(t, filepath.Join(tmpDir, ".leapflow/metastore.db"), cfg.Metastore)
	assert.Equal(t, filepath.Join(tmpDir, "transforms"), cfg.TransformsDir)
	assert.Equal(t, filepath.Join(tmpDir, "docs-site"), cfg.DocsDir)
	assert.Equal(t, "posthog_default", cfg.ConnID)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, tmpDir, cfg.ProjectRoot)
}

func TestLoadConfig_FromFile(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, `conn_id: posthog_eu
spool_path: queue/spool.db
relay:
  port: 9900
  admin_token: sekrit
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "posthog_eu", cfg.ConnID)
	assert.Equal(t, filepath.Join(tmpDir, "queue/spool.db"), cfg.SpoolPath)
	require.NotNil(t, cfg.Relay)
	assert.Equal(t, 9900, cfg.Relay.Port)
	assert.Equal(t, "sekrit", cfg.Relay.AdminToken)
}

func TestLoadConfigWithEnv_EnvironmentOverrides(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, `conn_id: posthog_default
relay:
  port: 9000
environments:
  prod:
    conn_id: posthog_prod
    spool_path: prod/spool.db
    relay:
      port: 9100
`)

	t.Run("default environment keeps base values", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithEnv(cfgPath, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "posthog_default", cfg.ConnID)
		assert.Equal(t, 9000, cfg.Relay.Port)
	})

	t.Run("prod override merges", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithEnv(cfgPath, "prod", nil)
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.Environment)
		assert.Equal(t, "posthog_prod", cfg.ConnID)
		assert.Equal(t, filepath.Join(tmpDir, "prod/spool.db"), cfg.SpoolPath)
		assert.Equal(t, 9100, cfg.Relay.Port)
	})

	t.Run("nonexistent environment falls back to base", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithEnv(cfgPath, "nonexistent", nil)
		require.NoError(t, err)
		assert.Equal(t, "posthog_default", cfg.ConnID)
		assert.Equal(t, 9000, cfg.Relay.Port)
	})
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "conn_id: from_file\n")

	require.NoError(t, os.Setenv("LEAPFLOW_CONN_ID", "from_env"))
	defer func() { _ = os.Unsetenv("LEAPFLOW_CONN_ID") }()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("conn", "", "connection id")
	require.NoError(t, flags.Set("conn", "from_flag"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_flag", cfg.ConnID, "flag value should override config file and env var")
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "conn_id: from_file\n")

	require.NoError(t, os.Setenv("LEAPFLOW_CONN_ID", "from_env"))
	defer func() { _ = os.Unsetenv("LEAPFLOW_CONN_ID") }()

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.ConnID, "env var should override config file")
}

func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "conn_id: from_file\n")

	require.NoError(t, os.Setenv("LEAPFLOW_CONN_ID", "from_env"))
	defer func() { _ = os.Unsetenv("LEAPFLOW_CONN_ID") }()

	// Create flag set but don't set the flag (Changed will be false)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("conn", "", "connection id")

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.ConnID, "env var should be used when flag is not set")
}

func TestLoadConfig_FlagPathsResolveFromCWD(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("spool", "", "spool path")
	require.NoError(t, flags.Set("spool", "events.db"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "events.db"), cfg.SpoolPath,
		"flag paths resolve against the CWD, not the project root")
}

func TestLoadConfig_SecretExpansion(t *testing.T) {
	ResetConfig()
	require.NoError(t, os.Setenv("TEST_ADMIN_TOKEN", "tok-123"))
	defer func() { _ = os.Unsetenv("TEST_ADMIN_TOKEN") }()

	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, `relay:
  admin_token: ${TEST_ADMIN_TOKEN}
  session_secret: ${UNSET_SESSION_SECRET}
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.Relay.AdminToken)
	assert.Equal(t, "${UNSET_SESSION_SECRET}", cfg.Relay.SessionSecret, "unset vars stay as-is")
}

func TestLoadConfig_PostgresMetastoreNotPathResolved(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "metastore: postgres://app:pw@db.internal/leapflow\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app:pw@db.internal/leapflow", cfg.Metastore)
}

func TestExpandEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("TEST_VAR_ONE", "value_one"))
	require.NoError(t, os.Setenv("TEST_VAR_TWO", "value_two"))
	defer func() {
		_ = os.Unsetenv("TEST_VAR_ONE")
		_ = os.Unsetenv("TEST_VAR_TWO")
	}()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single variable",
			input:    "${TEST_VAR_ONE}",
			expected: "value_one",
		},
		{
			name:     "multiple variables",
			input:    "${TEST_VAR_ONE}/${TEST_VAR_TWO}",
			expected: "value_one/value_two",
		},
		{
			name:     "variable in path",
			input:    "/path/to/${TEST_VAR_ONE}/file",
			expected: "/path/to/value_one/file",
		},
		{
			name:     "unset variable stays as-is",
			input:    "${UNSET_VARIABLE}",
			expected: "${UNSET_VARIABLE}",
		},
		{
			name:     "no variables",
			input:    "plain string",
			expected: "plain string",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "mixed set and unset",
			input:    "${TEST_VAR_ONE}:${UNSET_VAR}",
			expected: "value_one:${UNSET_VAR}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMergeRelayConfig(t *testing.T) {
	t.Run("nil base returns override", func(t *testing.T) {
		override := &RelayConfig{Port: 9000}
		assert.Equal(t, override, MergeRelayConfig(nil, override))
	})

	t.Run("nil override returns base", func(t *testing.T) {
		base := &RelayConfig{Port: 9000}
		assert.Equal(t, base, MergeRelayConfig(base, nil))
	})

	t.Run("both nil returns nil", func(t *testing.T) {
		assert.Nil(t, MergeRelayConfig(nil, nil))
	})

	t.Run("override replaces base fields", func(t *testing.T) {
		base := &RelayConfig{Port: 9000, Watch: true, AdminToken: "base"}
		override := &RelayConfig{Port: 9100, SessionSecret: "s"}

		merged := MergeRelayConfig(base, override)

		assert.Equal(t, 9100, merged.Port)
		assert.True(t, merged.Watch, "watch inherited from base")
		assert.Equal(t, "base", merged.AdminToken, "token inherited from base")
		assert.Equal(t, "s", merged.SessionSecret)
	})
}

func TestGetRelayConfig(t *testing.T) {
	t.Run("nil relay returns defaults", func(t *testing.T) {
		cfg := &Config{}
		relay := cfg.GetRelayConfig()
		assert.Equal(t, 8765, relay.Port)
		assert.True(t, relay.Watch)
	})

	t.Run("zero port gets default", func(t *testing.T) {
		cfg := &Config{Relay: &RelayConfig{AdminToken: "t"}}
		relay := cfg.GetRelayConfig()
		assert.Equal(t, 8765, relay.Port)
		assert.Equal(t, "t", relay.AdminToken)
	})

	t.Run("explicit port preserved", func(t *testing.T) {
		cfg := &Config{Relay: &RelayConfig{Port: 9000}}
		assert.Equal(t, 9000, cfg.GetRelayConfig().Port)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{ConnID: "posthog_default", OutputFormat: "auto"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("empty conn_id", func(t *testing.T) {
		cfg := &Config{OutputFormat: "auto"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conn_id is required")
	})

	t.Run("bad output format", func(t *testing.T) {
		cfg := &Config{ConnID: "posthog_default", OutputFormat: "yaml"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format")
	})

	t.Run("relay port out of range", func(t *testing.T) {
		cfg := &Config{ConnID: "posthog_default", Relay: &RelayConfig{Port: 70000}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})
}

func TestIsFileDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"", false},
		{":memory:", false},
		{"postgres://u:p@h/db", false},
		{"postgresql://u:p@h/db", false},
		{".leapflow/metastore.db", true},
		{"/abs/path/meta.db", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isFileDSN(tt.dsn), "isFileDSN(%q)", tt.dsn)
	}
}

func TestFindProjectRootUpward(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0750))
	writeConfigFile(t, tmpDir, "")

	assert.Equal(t, tmpDir, findProjectRootUpward(nested))
	assert.Equal(t, tmpDir, findProjectRootUpward(tmpDir))
}

func TestGetCurrentConfigAndFileUsed(t *testing.T) {
	ResetConfig()
	assert.Nil(t, GetCurrentConfig())
	assert.Empty(t, GetConfigFileUsed())

	tmpDir := t.TempDir()
	cfgPath := writeConfigFile(t, tmpDir, "conn_id: posthog_eu\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, cfg, GetCurrentConfig())
	assert.Equal(t, cfgPath, GetConfigFileUsed())
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back to discard logger", func(t *testing.T) {
		log := GetLogger(context.Background())
		require.NotNil(t, log)
	})

	t.Run("returns logger from context", func(t *testing.T) {
		want := slog.New(slog.NewTextHandler(os.Stderr, nil))
		ctx := context.WithValue(context.Background(), LoggerKey(), want)
		assert.Same(t, want, GetLogger(ctx))
	})
}
