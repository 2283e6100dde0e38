package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/procura/api/internal/config"
	"github.com/procura/api/internal/enum"
	"github.com/procura/api/internal/handler"
	mw "github.com/procura/api/internal/middleware"
	"github.com/procura/api/internal/service"
	"github.com/procura/api/internal/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, svc *service.Service, hub *ws.Hub, logger logrus.FieldLogger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, svc, cfg.JWTSecret, logger, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleProjectManager, enum.UserRoleProjectLead))

		sessionHandler := handler.NewSessionHandler(svc, logger)
		r.Route("/sessions", sessionHandler.RegisterRoutes)
	})

	logger.Debug("router initialized")
	return r
}
