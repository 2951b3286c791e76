// Package web provides the HTTP server and JSON handlers for the collection API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/ev2/internal/config"
	"github.com/JonMunkholm/ev2/internal/core"
	ev2mw "github.com/JonMunkholm/ev2/internal/web/middleware"
)

// Store is the part of core.Service the handlers use.
type Store interface {
	ListCollections() []core.CollectionDefinition
	Describe(key string) (core.CollectionDefinition, error)
	ListItems(ctx context.Context, key string, params core.ListParams) (*core.ListResult, error)
	CreateItem(ctx context.Context, key string, values map[string]any) (core.Item, error)
	UpdateItem(ctx context.Context, key string, id any, changes map[string]any) (core.Item, error)
	UpdateItems(ctx context.Context, key string, updates []core.ItemUpdate) (*core.BatchResult, error)
	DeleteItems(ctx context.Context, key string, ids []any) (*core.BatchResult, error)
	ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the collection API.
type Server struct {
	store     Store
	cfg       *config.Config
	router    *chi.Mux
	server    *http.Server
	general   *rateLimiter
	mutations *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(store Store, cfg *config.Config) *Server {
	s := &Server{
		store:  store,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.general = newRateLimiter(cfg.Rate.RequestsPerMinute, cfg.Rate.Burst)
		s.mutations = newRateLimiter(cfg.Rate.MutationLimit, cfg.Rate.Burst)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(ev2mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(ev2mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(s.securityHeaders)

	if s.general != nil {
		s.router.Use(s.general.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(ev2mw.APIKeyAuth(&s.cfg.Security))
		r.Use(s.limitBody)

		r.Get("/collections", s.handleListCollections)
		r.Get("/audit", s.handleListAudit)

		r.Route("/{collection}", func(r chi.Router) {
			r.Get("/", s.handleListItems)

			r.Group(func(r chi.Router) {
				if s.mutations != nil {
					r.Use(s.mutations.middleware)
				}
				r.Post("/create", s.handleCreate)
				r.Post("/update", s.handleUpdate)
				r.Post("/updateItems", s.handleUpdateItems)
				r.Post("/deleteItems", s.handleDeleteItems)
			})
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "route not found", core.CodeNotFound, "")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed", "", "")
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and the rate limiter sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.general != nil {
		s.general.stop()
	}
	if s.mutations != nil {
		s.mutations.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		// The API serves JSON only
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies at Server.MaxBodySize.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.cfg.Server.MaxBodySize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports database connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		writeFailure(w, http.StatusServiceUnavailable, "database unavailable", "", "")
		return
	}
	writeSuccess(w, http.StatusOK, "ok", nil)
}
