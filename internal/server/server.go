package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicalintel/intake/internal/ingest"
	"github.com/clinicalintel/intake/internal/otel"
	"github.com/clinicalintel/intake/internal/patient"
)

const defaultTimeout = 60 * time.Second

// maxBodyBytes caps JSON request bodies on /v1.
const maxBodyBytes = 4 << 20

// Server holds all dependencies for the HTTP API.
type Server struct {
	router         *chi.Mux
	service        *ingest.Service
	store          *patient.Store
	limiter        *RateLimiter
	metricsHandler http.Handler
	apiKeys        []string
	corsOrigins    []string
	startTime      time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"] for any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithAPIKeys enables key authentication on /v1. No keys leaves /v1 open.
func WithAPIKeys(keys []string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithRateLimiter sets the per-client limiter for /v1 (optional).
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithMetricsHandler mounts h at GET /metrics (optional).
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// NewServer builds a Server with the required dependencies and optional Option(s).
func NewServer(service *ingest.Service, store *patient.Store, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		service:     service,
		store:       store,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(SessionMiddleware)
		r.Use(middleware.Timeout(defaultTimeout))
		r.Use(middleware.RequestSize(maxBodyBytes))

		r.Post("/v1/ingest", s.handleIngest)
		r.Post("/v1/redact", s.handleRedact)

		r.Post("/v1/patients", s.handlePatientCreate)
		r.Get("/v1/patients/{id}/records", s.handleRecordsList)
		r.Post("/v1/patients/{id}/records", s.handleRecordCreate)
		r.Get("/v1/patients/{id}/conversations", s.handleConversationsList)
		r.Delete("/v1/records/{id}", s.handleRecordDelete)
	})

	return r
}
