package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/csrf"
	"github.com/saraivavision/booking-service/internal/metrics"
	"github.com/saraivavision/booking-service/internal/schedule"
	"github.com/saraivavision/booking-service/pkg/logging"
)

type RouterConfig struct {
	Booking      BookingService
	Availability AvailabilityService
	Tokens       csrf.Store
	Schedule     schedule.Schedule
	Config       config.Config
	Logger       *logging.Logger
	Metrics      *metrics.BookingMetrics
	Registry     *prometheus.Registry
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Config.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	h := NewHandler(cfg.Booking, cfg.Availability, cfg.Tokens, cfg.Schedule, cfg.Config, cfg.Logger, cfg.Metrics)
	limiter := NewRateLimiter(cfg.Config.RateLimitPerSec, cfg.Config.RateLimitBurst)

	r.Get("/availability", h.GetAvailability)
	r.Get("/csrf-token", h.IssueCSRFToken)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter))
		r.Post("/appointments", h.CreateAppointment)
		r.Post("/appointments/confirm", h.ConfirmAppointment)
		r.Post("/appointments/cancel", h.CancelAppointment)
	})

	return r
}
