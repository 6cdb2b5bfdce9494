package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Bookings BookingService
	Payments PaymentService
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	h := NewHandler(cfg.Bookings, cfg.Payments, cfg.Logger)

	r.Post("/appointments", h.Book)
	r.Get("/appointments", h.ListAppointments)
	r.Get("/appointments/{id}", h.GetAppointment)
	r.Post("/appointments/{id}/cancel", h.Cancel)
	r.Post("/appointments/{id}/reschedule", h.Reschedule)
	r.Post("/appointments/{id}/complete", h.Complete)
	r.Post("/appointments/{id}/payment-intent", h.CreatePaymentIntent)
	r.Post("/payments/confirm", h.ConfirmPayment)
	r.Get("/providers/{id}/slots", h.ProviderSlots)

	return r
}
