package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	"github.com/shopstack/payment-service/internal/infrastructure/config"
	"github.com/shopstack/payment-service/internal/infrastructure/observability"
	customMW "github.com/shopstack/payment-service/internal/middleware"
	"github.com/shopstack/payment-service/internal/repository/postgres"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	Reconciler      *paymentApp.Reconciler
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	ServerConfig    config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	if deps.ServerConfig.RateLimit > 0 {
		r.Use(customMW.RateLimit(deps.ServerConfig.RateLimit))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.Reconciler, deps.Metrics)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Webhooks authenticate with the gateway's HMAC signature, never a
		// bearer token, and must not be replayed from the idempotency store:
		// duplicate detection for webhooks lives in the application layer.
		r.Post("/payments/webhook", paymentH.Webhook)

		r.Group(func(r chi.Router) {
			if deps.ServerConfig.JWTSecret != "" {
				r.Use(customMW.RequireAuth(deps.ServerConfig.JWTSecret))
			}

			idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

			r.With(idempotencyMW).Post("/payments", paymentH.InitiatePayment)
			r.Get("/payments", paymentH.ListPayments)
			r.Get("/payments/{paymentId}", paymentH.GetPayment)
			r.Post("/payments/{paymentId}/verify", paymentH.VerifyPayment)
			r.With(idempotencyMW).Post("/payments/{paymentId}/refund", paymentH.RefundPayment)
			r.Post("/payments/{paymentId}/cancel", paymentH.CancelPayment)
		})
	})

	return r
}
