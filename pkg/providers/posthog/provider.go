package posthog

import (
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// ProviderVersion is the released version of this provider package.
const ProviderVersion = "3.0.0"

// ProviderInfo returns this package's manifest: what it ships and the
// minimum versions it needs from its runtime.
func ProviderInfo() provider.Info {
	return provider.Info{
		PackageName: "leapflow-providers-posthog",
		Name:        "PostHog",
		Description: "Send analytics events to PostHog from LeapFlow tasks.",
		Version:     ProviderVersion,
		Requirements: []provider.Requirement{
			{Name: "leapflow", MinVersion: "2.2.0"},
			{Name: "posthog", MinVersion: "1.4.9"},
		},
		ConnectionTypes: []string{ConnType},
		Hooks:           []string{HookName},
		Operators: []string{
			"TrackEventOperator",
			"IdentifyOperator",
			"AliasOperator",
			"GroupIdentifyOperator",
		},
	}
}

func init() {
	provider.Register(provider.Provider{
		Info: ProviderInfo(),
		NewHook: func(cfg provider.HookConfig) (provider.Hook, error) {
			return NewHook(cfg), nil
		},
	})
}
