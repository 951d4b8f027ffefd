package connections

import (
	"context"
	"os"
	"strings"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// EnvPrefix namespaces connection URIs in the environment. A connection
// posthog_default is read from LEAPFLOW_CONN_POSTHOG_DEFAULT.
const EnvPrefix = "LEAPFLOW_CONN_"

// EnvSource reads connections from environment variables in URI form.
type EnvSource struct{}

func (EnvSource) Name() string { return "environment" }

// EnvVar returns the environment variable holding the connection URI.
func EnvVar(id string) string {
	return EnvPrefix + strings.ToUpper(id)
}

func (EnvSource) Resolve(_ context.Context, id string) (*provider.Connection, error) {
	raw, ok := os.LookupEnv(EnvVar(id))
	if !ok || raw == "" {
		return nil, &provider.NotFoundError{ID: id}
	}
	return provider.ParseURI(id, raw)
}
