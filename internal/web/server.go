// Package web provides the local HTTP server: the JSON API over the session
// service, the SSE progress stream, the HTML diff table and /metrics.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/prepflow/internal/config"
	"github.com/JonMunkholm/prepflow/internal/core"
	"github.com/JonMunkholm/prepflow/internal/metrics"
	mw "github.com/JonMunkholm/prepflow/internal/web/middleware"
)

// Server is the HTTP server for one prepflow session.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics *metrics.Collector
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. collector may be nil, in which case requests
// are not recorded and /metrics is not mounted.
func NewServer(service *core.Service, cfg *config.Config, collector *metrics.Collector) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		metrics: collector,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	if s.metrics != nil {
		s.router.Use(mw.Logger(s.metrics))
	} else {
		s.router.Use(mw.Logger(nil))
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

// setupRoutes configures all HTTP routes. The progress stream is mounted
// outside the request timeout.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
		r.Get("/", s.handleIndex)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Progress stream
		r.Get("/run/progress", s.handleRunProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			// Dataset
			r.Get("/preview/{filename}", s.handlePreview)
			r.Get("/recommendations", s.handleRecommendations)
			r.Post("/recipe", s.handleApplyRecipe)

			// Step configuration
			r.Get("/config", s.handleGetConfig)
			r.Delete("/config", s.handleResetConfig)
			r.Post("/config/steps/{type}/toggle", s.handleToggleStep)
			r.Put("/config/steps/{type}", s.handleSetStep)
			r.Put("/config/fill/{column}", s.handleSetFill)
			r.Delete("/config/fill/{column}", s.handleClearFill)
			r.Put("/config/target", s.handleSetTarget)
			r.Get("/config/payload", s.handlePayload)

			// Run lifecycle
			r.Post("/run", s.handleStartRun)
			r.Get("/run", s.handleGetRun)
			r.Post("/run/reset", s.handleResetRun)

			// Result table
			r.Get("/table", s.handleTable)
			r.Delete("/table/filters", s.handleClearFilters)
			r.Post("/table/sort/{column}", s.handleToggleSort)
			r.Get("/table/export", s.handleExportCSV)
			r.Post("/table/export", s.handleExportTarget)
			r.Post("/table/save", s.handleSave)
			r.Get("/summary", s.handleSummary)

			// Session
			r.Delete("/session", s.handleClearSession)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps the progress stream open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
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
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// The dashboard ships its styles and progress script inline
			if csp {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON and writes it to w with status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
