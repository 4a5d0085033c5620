package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isdelr/disaster-tracker-be/internal/api/handlers"
	"github.com/isdelr/disaster-tracker-be/internal/ingest"
	"github.com/isdelr/disaster-tracker-be/internal/store"
	"github.com/isdelr/disaster-tracker-be/internal/websocket"
)

// Dependencies are the components the HTTP surface reads from and drives.
type Dependencies struct {
	Store       store.Store
	Submitter   ingest.SubmitterProvider
	Notifier    ingest.Notifier
	Refresher   handlers.Refresher
	Readiness   handlers.ReadinessChecker
	Hub         *websocket.Hub
	CORSOrigins []string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(deps.Readiness, deps.Store)
	eventHandler := handlers.NewEventHandler(deps.Store, deps.Submitter, deps.Notifier)
	refreshHandler := handlers.NewRefreshHandler(deps.Refresher)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.CORSOrigins)

	r.Get("/", healthHandler.Root)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// WebSocket connection endpoint
		r.Get("/ws", wsHandler.Serve)

		r.Route("/events", func(r chi.Router) {
			r.Get("/live", eventHandler.Live)
			r.Get("/past", eventHandler.Past)
			r.Get("/search", eventHandler.Search)
			r.Get("/type/{type}", eventHandler.ByType)
			r.Get("/location/{country}", eventHandler.ByLocation)
			r.Get("/severity/{severity}", eventHandler.BySeverity)
			r.Get("/{id}", eventHandler.Get)
			r.Post("/", eventHandler.Create)
		})

		r.Get("/stats", eventHandler.Stats)
		r.Post("/refresh", refreshHandler.Refresh)
	})

	return r
}
