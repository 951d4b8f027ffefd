package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay/features/common"
)

// SessionName is the cookie the relay session lives in.
const SessionName = "leapflow_relay"

// Handlers provides login and logout for the relay dashboard.
type Handlers struct {
	sessionStore sessions.Store
	token        string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessionStore sessions.Store, token string) *Handlers {
	return &Handlers{sessionStore: sessionStore, token: token}
}

// Login exchanges the admin token for an authenticated session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		common.Error(w, http.StatusNotFound, errors.New("authentication is not configured"))
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.Error(w, http.StatusBadRequest, fmt.Errorf("invalid login payload: %w", err))
		return
	}
	if subtle.ConstantTimeCompare([]byte(body.Token), []byte(h.token)) != 1 {
		common.Error(w, http.StatusUnauthorized, errors.New("wrong admin token"))
		return
	}

	session, _ := h.sessionStore.Get(r, SessionName)
	session.Values["authenticated"] = true
	if err := session.Save(r, w); err != nil {
		common.Error(w, http.StatusInternalServerError, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// Logout drops the session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessionStore.Get(r, SessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		common.Error(w, http.StatusInternalServerError, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// Middleware rejects requests that carry neither an authenticated session
// nor the admin token as a bearer header. With no token configured
// everything passes.
func Middleware(sessionStore sessions.Store, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if session, err := sessionStore.Get(r, SessionName); err == nil {
				if ok, _ := session.Values["authenticated"].(bool); ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			if bearer := bearerToken(r); bearer != "" &&
				subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			common.Error(w, http.StatusUnauthorized, errors.New("authentication required"))
		})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
