package posthog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.validate())
	cfg.applyDefaults()

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultMaxQueueSize, cfg.MaxQueueSize)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.now)
	assert.NotNil(t, cfg.uid)
}

func TestConfigEndpointTrailingSlash(t *testing.T) {
	cfg := Config{Endpoint: "https://ph.example.com/"}
	require.NoError(t, cfg.validate())
	cfg.applyDefaults()

	assert.Equal(t, "https://ph.example.com", cfg.Endpoint)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{"negative interval", Config{Interval: -time.Second}, "Interval"},
		{"negative batch size", Config{BatchSize: -1}, "BatchSize"},
		{"negative queue size", Config{MaxQueueSize: -1}, "MaxQueueSize"},
		{"negative retries", Config{MaxRetries: -1}, "MaxRetries"},
		{"bad endpoint scheme", Config{Endpoint: "ftp://ph.example.com"}, "Endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "APIKey", cfgErr.Field)
}
