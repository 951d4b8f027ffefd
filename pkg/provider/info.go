package provider

// Requirement pins the minimum version of a dependency a provider needs
// from its runtime.
type Requirement struct {
	Name       string `json:"name"`
	MinVersion string `json:"min_version"`
}

// Info is the manifest of an installed provider package. The docs
// generator and the providers command render it.
type Info struct {
	PackageName     string        `json:"package_name"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Version         string        `json:"version"`
	Requirements    []Requirement `json:"requirements"`
	ConnectionTypes []string      `json:"connection_types"`
	Hooks           []string      `json:"hooks"`
	Operators       []string      `json:"operators"`
}
