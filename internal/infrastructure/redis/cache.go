package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shopstack/payment-service/internal/domain/payment"
)

// RecordCache is a read-through cache for payment records keyed by internal
// payment id. It is strictly an optimization: every status mutation
// invalidates the key, and a miss or a Redis failure falls back to the
// database. Cache errors are logged, never surfaced.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRecordCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RecordCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecordCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "record_cache").Logger(),
	}
}

func cacheKey(paymentID string) string {
	return "payment:record:" + paymentID
}

// Get returns the cached record, or nil on a miss.
func (c *RecordCache) Get(ctx context.Context, paymentID string) *payment.Record {
	data, err := c.client.Get(ctx, cacheKey(paymentID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("payment_id", paymentID).Msg("cache get failed")
		}
		return nil
	}

	var rec payment.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn().Err(err).Str("payment_id", paymentID).Msg("cache entry corrupt, dropping")
		c.Invalidate(ctx, paymentID)
		return nil
	}
	return &rec
}

func (c *RecordCache) Set(ctx context.Context, rec *payment.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn().Err(err).Str("payment_id", rec.PaymentID).Msg("cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, cacheKey(rec.PaymentID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("payment_id", rec.PaymentID).Msg("cache set failed")
	}
}

func (c *RecordCache) Invalidate(ctx context.Context, paymentID string) {
	if err := c.client.Del(ctx, cacheKey(paymentID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("payment_id", paymentID).Msg("cache invalidate failed")
	}
}
