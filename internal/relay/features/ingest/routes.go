// Package ingest accepts posthog shaped capture and batch payloads and
// feeds them into the relay service.
package ingest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
)

// SetupRoutes configures routes for the ingest feature. Flush is
// operational and sits behind the admin guard.
func SetupRoutes(router chi.Router, svc *relay.Service, guard func(http.Handler) http.Handler) error {
	handlers := NewHandlers(svc)

	router.Post("/capture", handlers.Capture)
	router.Post("/batch", handlers.Batch)
	router.With(guard).Post("/flush", handlers.Flush)

	return nil
}
