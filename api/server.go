/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind proxies
  3. zerolog:    Structured request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the admin UI
  6. JWT auth:   Mutating routes only, active when a secret is set

ROUTE GROUPS:
  /api/contracts/*      Contract CRUD, lifecycle, previews, history
  /api/dashboard/*      Upcoming-due overview
  /api/seed             Demo data (dev only)
  /api/health           Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Bearer-token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	// AllowedOrigins for CORS; defaults to localhost dev hosts.
	AllowedOrigins []string

	// JWTSecret enables bearer auth on mutating routes when non-empty.
	JWTSecret string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		AllowCredentials: true,
	}))

	guard := requireAuth(opts.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.With(guard).Post("/", h.CreateContract)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetContract)
				r.With(guard).Put("/", h.UpdateContract)
				r.With(guard).Delete("/", h.DeleteContract)

				r.With(guard).Post("/activate", h.Activate)
				r.With(guard).Post("/suspend", h.Suspend)
				r.With(guard).Post("/resume", h.Resume)
				r.With(guard).Post("/terminate", h.Terminate)

				r.Get("/cycles", h.Cycles)
				r.Get("/cycles/amounts", h.CycleAmounts)
				r.Get("/occurrences", h.Occurrences)
				r.Get("/history", h.History)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/upcoming", h.Upcoming)
		})

		r.With(guard).Post("/seed", h.Seed)
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
