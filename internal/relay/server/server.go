// Package server runs the relay's HTTP front end: event intake, the
// dashboard and the spool endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapflow-posthog/internal/connections"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/router"
)

// Server is the relay HTTP server.
type Server struct {
	service      *relay.Service
	port         int
	watch        bool
	connWatcher  *connections.Watcher
	adminToken   string
	sessionStore *sessions.CookieStore
	logger       *slog.Logger
}

// Config holds configuration for the relay server.
type Config struct {
	Service *relay.Service
	Port    int

	// Watch reloads the transform pipeline when a .star file changes.
	Watch bool

	// ConnWatcher reloads the connections file on change. Optional.
	ConnWatcher *connections.Watcher

	// AdminToken guards the mutating endpoints. Empty leaves them open.
	AdminToken    string
	SessionSecret string

	Logger *slog.Logger
}

// New creates a new relay server instance.
func New(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Server{
		service:      cfg.Service,
		port:         cfg.Port,
		watch:        cfg.Watch,
		connWatcher:  cfg.ConnWatcher,
		adminToken:   cfg.AdminToken,
		sessionStore: sessionStore,
		logger:       log,
	}
}

// Serve starts the relay server and blocks until the context is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting relay server",
		"addr", fmt.Sprintf("http://localhost:%d", s.port),
		"conn_id", s.service.ConnID())

	eg, egctx := errgroup.WithContext(ctx)

	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	if err := router.SetupRoutes(r, s.service, s.sessionStore, s.adminToken); err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.service.TransformsDir() != "" {
		eg.Go(func() error {
			return s.watchTransforms(egctx)
		})
	}

	if s.connWatcher != nil {
		eg.Go(func() error {
			return s.connWatcher.Run(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down relay server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchTransforms reloads the pipeline when a transform file changes.
func (s *Server) watchTransforms(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.service.TransformsDir()); err != nil {
		s.logger.Error("failed to watch transforms directory", "error", err)
		// Don't fail - continue without watching
	}

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".star" {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("transform changed, reloading", "file", event.Name)
				if err := s.service.ReloadTransforms(); err != nil {
					s.logger.Error("transform reload failed", "error", err)
				}
			})

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}
