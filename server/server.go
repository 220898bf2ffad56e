// Package server wires the HTTP router, its middleware and the graceful
// shutdown of the NHANES API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/giygas/nhanes-api/config"
	"github.com/giygas/nhanes-api/handlers"
	"github.com/giygas/nhanes-api/health"
	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/metrics"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/validation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	router      chi.Router
	dataStore   interfaces.DataStore
	handler     *handlers.HTTPHandlerImpl
	rateLimiter *RateLimiter
	config      *config.Config
}

// NewServer creates a server serving dataStore. urls resolves /v1/url.
func NewServer(cfg *config.Config, dataStore interfaces.DataStore, urls *nhanes.URLBuilder) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:    router,
		dataStore: dataStore,
		handler: handlers.NewHTTPHandler(
			dataStore,
			validation.NewDataValidator(),
			health.NewHealthChecker(dataStore, cfg.UpdateTimes),
			urls,
		),
		rateLimiter: NewRateLimiter(),
		config:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(metrics.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/datasets", s.handler.ServeDatasetsV1)
		r.Get("/datasets/{name}", s.handler.ServeDatasetV1)
		r.Get("/datasets/{name}/columns", s.handler.ServeColumnsV1)
		r.Get("/datasets/{name}/export", s.handler.ExportDatasetV1)
		r.Get("/drugs", s.handler.ServeDrugsV1)
		r.Get("/url", s.handler.ServeURLV1)
	})

	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.handler.RespondWithError(w, http.StatusNotFound, fmt.Sprintf("No route for %s", r.URL.Path))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.handler.RespondWithError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed", r.Method))
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port), "env", s.config.Env)
	return s.server.ListenAndServe()
}

// Shutdown waits for in-flight requests until ctx expires, then closes
// remaining connections.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.rateLimiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}
