// Package router sets up HTTP routes for the relay server.
package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	authFeature "github.com/leapstack-labs/leapflow-posthog/internal/relay/features/auth"
	ingestFeature "github.com/leapstack-labs/leapflow-posthog/internal/relay/features/ingest"
	overviewFeature "github.com/leapstack-labs/leapflow-posthog/internal/relay/features/overview"
	spooluiFeature "github.com/leapstack-labs/leapflow-posthog/internal/relay/features/spoolui"
)

// SetupRoutes configures all routes for the relay server.
func SetupRoutes(
	router chi.Router,
	svc *relay.Service,
	sessionStore *sessions.CookieStore,
	adminToken string,
) error {
	guard := authFeature.Middleware(sessionStore, adminToken)

	if err := authFeature.SetupRoutes(router, sessionStore, adminToken); err != nil {
		return err
	}

	if err := overviewFeature.SetupRoutes(router, svc); err != nil {
		return err
	}

	if err := ingestFeature.SetupRoutes(router, svc, guard); err != nil {
		return err
	}

	if err := spooluiFeature.SetupRoutes(router, svc, guard); err != nil {
		return err
	}

	return nil
}
