package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	"github.com/shopstack/payment-service/internal/gateway"
	"github.com/shopstack/payment-service/internal/infrastructure/config"
	"github.com/shopstack/payment-service/internal/infrastructure/observability"
	infraRedis "github.com/shopstack/payment-service/internal/infrastructure/redis"
	"github.com/shopstack/payment-service/internal/repository/postgres"
)

// App holds the shared infrastructure every binary needs: config, logging,
// tracing, metrics and the Postgres/Redis connections.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
	}, nil
}

// NewReconciler wires the payment reconciler against the app's connections.
// Both the API and the worker use the same assembly so gateway calls always
// go through the circuit breaker and reads through the cache.
func (a *App) NewReconciler() (*paymentApp.Reconciler, error) {
	verifier, err := gateway.NewSignatureVerifier(a.Config.Gateway.KeySecret, a.Config.Gateway.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("configure signature verifier: %w", err)
	}

	gw := gateway.NewBreakerClient(
		gateway.NewRazorpayClient(
			a.Config.Gateway.KeyID,
			a.Config.Gateway.KeySecret,
			a.Config.Gateway.CallTimeout,
			a.Logger,
		),
		a.Config.Gateway.Provider,
	)

	cache := infraRedis.NewRecordCache(a.Redis, a.Config.Redis.CacheTTL, a.Logger)

	return paymentApp.NewReconciler(
		postgres.NewPaymentRepository(a.Pool),
		gw,
		verifier,
		postgres.NewOutboxRepository(a.Pool),
		postgres.NewTxManager(a.Pool),
		cache,
		a.Config.Gateway.DefaultCurrency,
		a.Logger,
	), nil
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
