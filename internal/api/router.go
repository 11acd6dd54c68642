package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medtriage/triage-booking/internal/booking"
)

type RouterConfig struct {
	Service   *booking.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *zap.Logger
	JWTSecret string
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment endpoints
	r.Route("/api/appointments", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.With(httprate.LimitByIP(30, time.Minute)).
			Post("/book", bookAppointmentHandler(cfg.Service, cfg.Logger))
		r.Get("/doctor/me", listDoctorAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Get("/patient/me", listPatientAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Get("/{id}", getAppointmentHandler(cfg.Service, cfg.Logger))
		r.Patch("/{id}/cancel", cancelAppointmentHandler(cfg.Service, cfg.Logger))
	})

	return r
}
