// Package server assembles the solverd HTTP API: the chi router, the
// middleware chain, and listener lifecycle.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/unitable/solverd/internal/errors"
	"github.com/unitable/solverd/internal/observability"
	"github.com/unitable/solverd/internal/server/handlers"
	"github.com/unitable/solverd/internal/server/middleware"
	"github.com/unitable/solverd/pkg/jobs"
)

// Options carries the dependencies and tunables for a Server.
type Options struct {
	Host string
	Port int

	// Manager serves the problem/job routes; nil leaves them unregistered
	// (tests exercising only ambient routes).
	Manager *jobs.Manager

	// Supervisor serves the singleton solver routes; nil leaves them
	// unregistered.
	Supervisor *jobs.Supervisor

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the solverd HTTP front end.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
}

// New builds the router and the underlying http.Server.
func New(host string, port int, opts ...func(*Options)) *Server {
	o := Options{Host: host, Port: port}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestLogger)

	// Unmatched routes still answer with the JSON envelope.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteEnvelope(w, http.StatusNotFound,
			gferrors.NewErrorEnvelope("NOT_FOUND",
				fmt.Sprintf("no route for %s %s", req.Method, req.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteEnvelope(w, http.StatusMethodNotAllowed,
			gferrors.NewErrorEnvelope("METHOD_NOT_ALLOWED",
				fmt.Sprintf("method %s not allowed for %s", req.Method, req.URL.Path)))
	})

	r.Get("/", handlers.RootHandler)
	r.Get("/version", handlers.VersionHandler)
	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)

	if o.Manager != nil {
		ph := &handlers.ProblemHandlers{Manager: o.Manager}
		r.Route("/problems", func(r chi.Router) {
			r.Post("/", ph.Submit)
			r.Post("/xml", ph.SubmitXML)
			r.Get("/", ph.List)
			r.Get("/{id}", ph.Status)
			r.Delete("/{id}", ph.Cancel)
			r.Get("/{id}/solution", ph.Result)
			r.Get("/{id}/solution/xml", ph.ResultXML)
		})
	}

	if o.Supervisor != nil {
		sh := &handlers.SolverHandlers{Supervisor: o.Supervisor}
		r.Route("/solver", func(r chi.Router) {
			r.Post("/start", sh.Start)
			r.Get("/status", sh.Status)
			r.Post("/stop", sh.Stop)
		})
	}

	srv := &Server{
		host:   host,
		port:   port,
		router: r,
	}
	srv.http = &http.Server{
		Addr:         net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		Handler:      r,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		IdleTimeout:  o.IdleTimeout,
	}
	return srv
}

// WithManager registers the problem routes.
func WithManager(m *jobs.Manager) func(*Options) {
	return func(o *Options) { o.Manager = m }
}

// WithSupervisor registers the singleton solver routes.
func WithSupervisor(s *jobs.Supervisor) func(*Options) {
	return func(o *Options) { o.Supervisor = s }
}

// WithTimeouts sets the listener timeouts.
func WithTimeouts(read, write, idle time.Duration) func(*Options) {
	return func(o *Options) {
		o.ReadTimeout = read
		o.WriteTimeout = write
		o.IdleTimeout = idle
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Start serves until the listener fails or Shutdown is called. It blocks;
// http.ErrServerClosed is swallowed as the normal shutdown outcome.
func (s *Server) Start() error {
	observability.Logger().Info("http server listening",
		zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
