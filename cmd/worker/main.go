package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	"github.com/shopstack/payment-service/internal/bootstrap"
	"github.com/shopstack/payment-service/internal/domain/outbox"
	infraRedis "github.com/shopstack/payment-service/internal/infrastructure/redis"
	"github.com/shopstack/payment-service/internal/repository/postgres"
)

const sweepLockKey = "reconciler:sweep"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "payment-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	reconciler, err := app.NewReconciler()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build reconciler")
	}

	txManager := postgres.NewTxManager(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox drainer: publishes committed domain events to Redis Streams.
	g.Go(func() error {
		return runOutboxDrainer(gCtx, app, txManager, outboxRepo, streamProducer)
	})

	// 2. Reconciliation sweep: resolves payments stuck in processing.
	g.Go(func() error {
		return runReconciliationSweep(gCtx, app, reconciler)
	})

	// 3. Idempotency store cleanup.
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, idempotencyRepo)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	app.Logger.Info().Str("instance", app.Config.InstanceID).Msg("Worker started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runOutboxDrainer polls the outbox table and publishes pending entries. The
// read and status updates run in one transaction so concurrent workers skip
// each other's locked rows; publication remains at-least-once because the
// stream write happens before the commit.
func runOutboxDrainer(
	ctx context.Context,
	app *bootstrap.App,
	txManager *postgres.TxManager,
	outboxRepo outbox.Repository,
	producer *infraRedis.StreamProducer,
) error {
	ticker := time.NewTicker(app.Config.Worker.OutboxPollInterval)
	defer ticker.Stop()

	batchSize := int(app.Config.Worker.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			entries, err := outboxRepo.GetPending(txCtx, batchSize)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := producer.PublishPaymentEvent(ctx, entry.AggregateID, entry.EventType, entry.Payload); err != nil {
					app.Logger.Error().Err(err).
						Str("outbox_id", entry.ID.String()).
						Str("event_type", entry.EventType).
						Msg("Failed to publish outbox event")
					app.Metrics.OutboxPublished.WithLabelValues("error").Inc()

					if entry.RetryCount+1 >= entry.MaxRetries {
						if dlqErr := producer.PublishToDLQ(ctx, entry.AggregateID, err.Error(), entry.Payload); dlqErr != nil {
							app.Logger.Error().Err(dlqErr).Str("outbox_id", entry.ID.String()).Msg("Failed to park event in DLQ")
						}
					}
					if err := outboxRepo.MarkFailed(txCtx, entry.ID); err != nil {
						return err
					}
					continue
				}

				if err := outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
					return err
				}
				app.Metrics.OutboxPublished.WithLabelValues("success").Inc()
			}
			return nil
		})
		if err != nil {
			app.Logger.Error().Err(err).Msg("Outbox drainer error")
		}
	}
}

// runReconciliationSweep periodically resolves stale processing payments. A
// distributed lock keeps the sweep to one worker instance per interval.
func runReconciliationSweep(
	ctx context.Context,
	app *bootstrap.App,
	reconciler *paymentApp.Reconciler,
) error {
	cfg := app.Config.Reconciler
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := infraRedis.NewDistributedLock(app.Redis, sweepLockKey, cfg.LockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Failed to acquire sweep lock")
			app.Metrics.ReconcilerSweeps.WithLabelValues("error").Inc()
			continue
		}
		if !acquired {
			app.Metrics.ReconcilerSweeps.WithLabelValues("skipped").Inc()
			continue
		}

		sweep(ctx, app, reconciler, cfg.StaleAfter, cfg.BatchSize)
		lock.Release(ctx)
	}
}

func sweep(ctx context.Context, app *bootstrap.App, reconciler *paymentApp.Reconciler, staleAfter time.Duration, batchSize int) {
	start := time.Now()
	res, err := reconciler.SweepStale(ctx, staleAfter, batchSize)
	app.Metrics.WorkerSweepDuration.WithLabelValues("reconcile").Observe(time.Since(start).Seconds())

	if err != nil {
		app.Logger.Error().Err(err).Msg("Reconciliation sweep failed")
		app.Metrics.ReconcilerSweeps.WithLabelValues("error").Inc()
		return
	}

	app.Metrics.ReconcilerSweeps.WithLabelValues("ok").Inc()
	app.Metrics.ReconcilerResolved.WithLabelValues("completed").Add(float64(res.Completed))
	app.Metrics.ReconcilerResolved.WithLabelValues("failed").Add(float64(res.Failed))

	if res.Examined > 0 {
		app.Logger.Info().
			Int("examined", res.Examined).
			Int("completed", res.Completed).
			Int("failed", res.Failed).
			Int("pending", res.Pending).
			Msg("Reconciliation sweep finished")
	}
}

// runIdempotencyCleanup deletes expired idempotency keys once an hour.
func runIdempotencyCleanup(ctx context.Context, logger zerolog.Logger, repo *postgres.IdempotencyRepository) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		deleted, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Msg("Cleaned up expired idempotency keys")
		}
	}
}
