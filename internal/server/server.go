package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/goshift/internal/config"
	"github.com/me/goshift/internal/dispatcher"
	"github.com/me/goshift/internal/roster"
	"github.com/me/goshift/internal/store"
)

// Server is the goshift REST API server.
type Server struct {
	router     chi.Router
	logger     *slog.Logger
	config     config.ServerConfig
	startTime  time.Time
	store      store.Store
	dispatcher dispatcher.Dispatcher // optional; nil when a separate worker process claims jobs
	roster     roster.Client         // optional; reported by /api/health when set
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithRosterClient sets the staff data service client probed by the health
// endpoint.
func WithRosterClient(c roster.Client) Option {
	return func(s *Server) {
		s.roster = c
	}
}

// New creates a new Server with all routes registered.
// disp may be nil when no embedded dispatcher is desired (e.g. in tests, or
// when jobs are processed by a standalone worker).
func New(cfg config.ServerConfig, st store.Store, disp dispatcher.Dispatcher, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.With("component", "server"),
		config:     cfg,
		startTime:  time.Now(),
		store:      st,
		dispatcher: disp,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// StartDispatcher begins the job processing loop in a background goroutine.
func (s *Server) StartDispatcher(ctx context.Context) {
	if s.dispatcher == nil {
		return
	}
	go func() {
		if err := s.dispatcher.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("dispatcher stopped", "error", err)
		}
	}()
}

// StopDispatcher stops the embedded dispatcher, waiting up to timeout for
// in-flight jobs. It returns the number of jobs still running at expiry.
func (s *Server) StopDispatcher(timeout time.Duration) int {
	if s.dispatcher == nil {
		return 0
	}
	return s.dispatcher.Stop(timeout)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Schedules
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Post("/", s.handleCreateSchedule)
			r.Route("/{scheduleID}", func(r chi.Router) {
				r.Get("/", s.handleGetSchedule)
				r.Get("/assignments", s.handleGetAssignments)
			})
		})
	})
}
