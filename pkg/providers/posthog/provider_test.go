package posthog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

func TestProviderRegistersOnInit(t *testing.T) {
	assert.True(t, provider.IsRegistered(ConnType))

	hook, err := provider.NewHook(ConnType, provider.HookConfig{ConnID: "posthog_eu"})
	require.NoError(t, err)
	assert.Equal(t, "posthog_eu", hook.ConnID())
}

func TestProviderInfo(t *testing.T) {
	info := ProviderInfo()

	assert.Equal(t, "leapflow-providers-posthog", info.PackageName)
	assert.Equal(t, "PostHog", info.Name)
	assert.Equal(t, "3.0.0", info.Version)
	assert.Equal(t, []string{ConnType}, info.ConnectionTypes)
	assert.Contains(t, info.Hooks, HookName)
	assert.Contains(t, info.Operators, "TrackEventOperator")

	require.Len(t, info.Requirements, 2)
	assert.Equal(t, provider.Requirement{Name: "leapflow", MinVersion: "2.2.0"}, info.Requirements[0])
	assert.Equal(t, provider.Requirement{Name: "posthog", MinVersion: "1.4.9"}, info.Requirements[1])
}
