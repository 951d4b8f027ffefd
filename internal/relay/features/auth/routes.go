// Package auth guards the relay's mutating endpoints with a session
// backed admin token.
package auth

import (
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
)

// SetupRoutes configures routes for the auth feature.
func SetupRoutes(router chi.Router, sessionStore sessions.Store, token string) error {
	handlers := NewHandlers(sessionStore, token)

	router.Post("/login", handlers.Login)
	router.Post("/logout", handlers.Logout)

	return nil
}
