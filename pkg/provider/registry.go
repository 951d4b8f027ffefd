package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Provider couples a manifest with its hook factory.
type Provider struct {
	Info    Info
	NewHook func(cfg HookConfig) (Hook, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Provider)
)

// Register adds a provider to the registry under each of its connection
// types. Called by provider packages in their init() functions.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, connType := range p.Info.ConnectionTypes {
		registry[connType] = p
	}
}

// Lookup retrieves a provider by connection type.
func Lookup(connType string) (Provider, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[connType]
	return p, ok
}

// NewHook builds a hook for a connection type through its registered
// provider.
func NewHook(connType string, cfg HookConfig) (Hook, error) {
	if connType == "" {
		return nil, fmt.Errorf("connection type not specified")
	}

	p, ok := Lookup(connType)
	if !ok {
		return nil, &UnknownProviderError{
			Type:      connType,
			Available: List(),
		}
	}
	return p.NewHook(cfg)
}

// List returns all registered connection types (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for connType := range registry {
		types = append(types, connType)
	}
	sort.Strings(types)
	return types
}

// Infos returns the manifests of all registered providers, sorted by
// package name.
func Infos() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()
	seen := make(map[string]bool, len(registry))
	infos := make([]Info, 0, len(registry))
	for _, p := range registry {
		if seen[p.Info.PackageName] {
			continue
		}
		seen[p.Info.PackageName] = true
		infos = append(infos, p.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PackageName < infos[j].PackageName })
	return infos
}

// IsRegistered checks if a connection type has a provider.
func IsRegistered(connType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[connType]
	return ok
}

// UnknownProviderError is returned when no provider serves a connection
// type.
type UnknownProviderError struct {
	Type      string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown connection type %q\nAvailable providers: %v\nHint: Check the conn_type on your connection", e.Type, e.Available)
}
