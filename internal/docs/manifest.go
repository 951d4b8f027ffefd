package docs

import (
	"time"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// Manifest is the machine readable side of a docs build. The providers
// command renders it without parsing the markdown pages.
type Manifest struct {
	PackageName  string                 `json:"package_name"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Version      string                 `json:"version"`
	GeneratedAt  time.Time              `json:"generated_at"`
	Requirements []provider.Requirement `json:"requirements"`
	Pages        []Page                 `json:"pages"`
	Stats        Stats                  `json:"stats"`
}

// Stats counts what the provider ships, for the index shell.
type Stats struct {
	HookCount           int `json:"hook_count"`
	OperatorCount       int `json:"operator_count"`
	ConnectionTypeCount int `json:"connection_type_count"`
	RequirementCount    int `json:"requirement_count"`
	ReleaseCount        int `json:"release_count"`
}

// GenerateManifest builds the manifest for an installed provider.
func GenerateManifest(info provider.Info) *Manifest {
	return &Manifest{
		PackageName:  info.PackageName,
		Name:         info.Name,
		Description:  info.Description,
		Version:      info.Version,
		GeneratedAt:  time.Now().UTC(),
		Requirements: info.Requirements,
		Pages:        Pages,
		Stats: Stats{
			HookCount:           len(info.Hooks),
			OperatorCount:       len(info.Operators),
			ConnectionTypeCount: len(info.ConnectionTypes),
			RequirementCount:    len(info.Requirements),
			ReleaseCount:        len(releases),
		},
	}
}
