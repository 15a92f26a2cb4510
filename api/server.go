/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request log (method, path, status, duration, id)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Timeout:    Cancels the request context after RequestTimeout
  6. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /healthz              Liveness
  /api/auth/*           Signup, login, logout
  /api/paths            Path catalog
  /api/loans/*          Loan calculator
  /api/game/*           The player's game (authenticated)
  /api/retirement/*     Retirement tools (authenticated)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/finpath/serve.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/login", h.Login)
		r.Get("/paths", h.ListPaths)
		r.Get("/loans/emi", h.QuoteEMI)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Post("/auth/logout", h.Logout)

			// Game routes
			r.Route("/game", func(r chi.Router) {
				r.Get("/", h.GetGame)
				r.Post("/path", h.SelectPath)
				r.Get("/metrics", h.GetMetrics)
				r.Get("/history", h.GetHistory)
				r.Get("/{path}", h.GetPathView)
				r.Post("/{path}/actions", h.ApplyAction)
			})

			// Retirement tools
			r.Route("/retirement", func(r chi.Router) {
				r.Get("/allocation", h.GetAllocation)
				r.Get("/investments/{id}/projection", h.GetProjection)
			})
		})
	})

	return r
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
