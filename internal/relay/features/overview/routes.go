// Package overview serves the relay dashboard with live SSE updates and
// the machine readable status endpoints.
package overview

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
)

// SetupRoutes configures routes for the overview feature.
func SetupRoutes(router chi.Router, svc *relay.Service) error {
	handlers := NewHandlers(svc)

	router.Get("/", handlers.Dashboard)
	router.Get("/updates", handlers.Updates)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/stats", handlers.StatsJSON)

	return nil
}
