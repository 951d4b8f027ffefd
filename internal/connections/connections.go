// Package connections resolves LeapFlow connections from their three
// homes: environment variables, the connections file and the metastore.
package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// Source is one place connections can live.
type Source interface {
	provider.ConnectionResolver

	// Name identifies the source in logs and doctor output.
	Name() string
}

// Chain resolves against each source in order; the first hit wins.
type Chain struct {
	sources []Source
	log     *slog.Logger
}

// NewChain builds a resolver over the given sources. A nil logger
// discards diagnostics.
func NewChain(log *slog.Logger, sources ...Source) *Chain {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Chain{sources: sources, log: log}
}

// Sources returns the chain's sources in resolution order.
func (c *Chain) Sources() []Source {
	return c.sources
}

// Resolve implements provider.ConnectionResolver.
func (c *Chain) Resolve(ctx context.Context, id string) (*provider.Connection, error) {
	if id == "" {
		return nil, fmt.Errorf("connection id must not be empty")
	}
	for _, src := range c.sources {
		conn, err := src.Resolve(ctx, id)
		if err == nil {
			c.log.Debug("connection resolved", "conn_id", id, "source", src.Name())
			return conn, nil
		}
		var notFound *provider.NotFoundError
		if errors.As(err, &notFound) {
			continue
		}
		return nil, fmt.Errorf("failed to resolve connection %q via %s: %w", id, src.Name(), err)
	}
	return nil, &provider.NotFoundError{ID: id}
}
