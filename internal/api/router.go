package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/appointment"
)

type RouterConfig struct {
	Service        *appointment.Service
	Coordinator    *alert.Coordinator
	Store          Pinger
	StoreDriver    string
	Redis          *redis.Client
	Logger         zerolog.Logger
	JWTSecret      []byte
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := NewHealthHandler(cfg.Store, cfg.StoreDriver, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	coord := cfg.Coordinator
	if coord == nil {
		coord = alert.NewCoordinator(cfg.Service)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.JWTSecret))
		r.Use(middleware.Timeout(15 * time.Second))

		r.Get("/services", listServicesHandler(cfg.Service.Catalog()))
		r.Get("/stats", statsHandler(coord))

		r.Route("/appointments", func(r chi.Router) {
			r.With(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)).
				Post("/", createAppointmentHandler(cfg.Service))
			r.Get("/", listAppointmentsHandler(cfg.Service))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(cfg.Service))
				r.Delete("/", deleteAppointmentHandler(cfg.Service))
				r.Put("/plan", planAppointmentHandler(cfg.Service))
				r.Put("/validate", transitionHandler(cfg.Service.ValidateAppointment))
				r.Put("/acknowledge", transitionHandler(cfg.Service.AcknowledgeAppointment))
				r.Put("/complete", transitionHandler(cfg.Service.CompleteAppointment))
				r.Put("/cancel", transitionHandler(cfg.Service.CancelAppointment))
			})
		})
	})

	return r
}
