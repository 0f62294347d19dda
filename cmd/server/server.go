package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/api"
	"github.com/tendant/simple-news/pkg/simplenews/config"
	"github.com/tendant/simple-news/pkg/simplenews/metrics"
)

// HTTPServer wraps the news service for HTTP access
type HTTPServer struct {
	service simplenews.Service
	config  *config.ServerConfig
	metrics *metrics.Collector
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(service simplenews.Service, serverConfig *config.ServerConfig, collector *metrics.Collector) *HTTPServer {
	return &HTTPServer{
		service: service,
		config:  serverConfig,
		metrics: collector,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	// CORS for development
	if s.config.IsDevelopment() {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	limits := api.UploadLimits{MaxFileBytes: s.config.MaxUploadBytes, MaxFiles: s.config.MaxUploadFiles}
	news := api.NewNewsHandler(s.service, limits, s.adminMiddleware()...)

	r.Route("/api", func(r chi.Router) {
		if s.config.RateLimitRPS > 0 {
			r.Use(api.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst).Handler)
		}
		r.Mount("/news", news.Routes())
	})

	if s.config.ServesBlobs() {
		r.Mount(s.config.Storage.URLPrefix, api.NewBlobHandler(s.service).Routes())
	}

	return r
}

// adminMiddleware guards mutating routes. Without a secret, which Validate
// only permits in development, they are left open.
func (s *HTTPServer) adminMiddleware() []func(http.Handler) http.Handler {
	if s.config.JWTSecret == "" {
		return nil
	}
	return []func(http.Handler) http.Handler{api.RequireAdmin(api.NewJWTAuth(s.config.JWTSecret))}
}

type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
	Storage     string `json:"storage"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{
		Status:      "healthy",
		Environment: s.config.Environment,
		Database:    s.config.DatabaseType,
		Storage:     s.config.Storage.Type,
	})
}
