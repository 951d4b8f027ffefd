// Package spoolui exposes the failure spool over HTTP: inspection,
// replay and purge.
package spoolui

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
)

// SetupRoutes configures routes for the spool feature. Replay and purge
// mutate the spool and sit behind the admin guard.
func SetupRoutes(router chi.Router, svc *relay.Service, guard func(http.Handler) http.Handler) error {
	handlers := NewHandlers(svc)

	router.Get("/spool", handlers.List)
	router.With(guard).Post("/spool/replay", handlers.Replay)
	router.With(guard).Post("/spool/purge", handlers.Purge)

	return nil
}
