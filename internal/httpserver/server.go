// Package httpserver exposes the paste operations as a JSON API.
package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pastekeep/internal/metrics"
	"pastekeep/internal/service"
)

// Config captures server configuration.
type Config struct {
	Service  *service.Service
	Logger   *slog.Logger
	Limiter  *IPLimiter
	MaxBytes int
	// TrustProxy enables X-Forwarded-For handling for client identity
	// and rate-limit bucketing.
	TrustProxy bool
	// CurrentUser extracts the authenticated user id from a request,
	// empty for anonymous. Session handling lives outside this core;
	// whatever fronts the service supplies the identity.
	CurrentUser func(*http.Request) string
}

// Server wraps HTTP handling logic.
type Server struct {
	svc         *service.Service
	router      chi.Router
	logger      *slog.Logger
	limiter     *IPLimiter
	maxBytes    int
	trustProxy  bool
	currentUser func(*http.Request) string
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1_048_576
	}
	if cfg.CurrentUser == nil {
		cfg.CurrentUser = func(*http.Request) string { return "" }
	}
	srv := &Server{
		svc:         cfg.Service,
		router:      chi.NewRouter(),
		logger:      cfg.Logger,
		limiter:     cfg.Limiter,
		maxBytes:    cfg.MaxBytes,
		trustProxy:  cfg.TrustProxy,
		currentUser: cfg.CurrentUser,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(Throttle(s.limiter, func(r *http.Request) string {
		return ClientIP(r, s.trustProxy)
	}))
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/pastes", s.handleCreate)
		api.Get("/pastes/{slug}", s.handleGet)
		api.Get("/pastes/{slug}/raw", s.handleRaw)
		api.Delete("/pastes/{id}", s.handleDelete)
		api.Patch("/pastes/{id}", s.handleUpdate)
		api.Get("/public", s.handleListPublic)
		api.Get("/slugs/{candidate}", s.handleSlugCheck)
		api.Get("/me/stats", s.handleOwnerStats)
	})
}
