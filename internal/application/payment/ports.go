package payment

import (
	"context"

	"github.com/shopstack/payment-service/internal/domain/outbox"
	"github.com/shopstack/payment-service/internal/domain/payment"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxWriter defines the interface for writing to the transactional outbox.
type OutboxWriter interface {
	Insert(ctx context.Context, entry *outbox.Entry) error
}

// RecordCache is a best-effort read cache for payment records. Implementations
// must never fail a request: a miss and an error look the same to callers.
type RecordCache interface {
	Get(ctx context.Context, paymentID string) *payment.Record
	Set(ctx context.Context, rec *payment.Record)
	Invalidate(ctx context.Context, paymentID string)
}

// noopCache is used when no cache is wired, e.g. in the worker binary.
type noopCache struct{}

func (noopCache) Get(context.Context, string) *payment.Record { return nil }
func (noopCache) Set(context.Context, *payment.Record)        {}
func (noopCache) Invalidate(context.Context, string)          {}
