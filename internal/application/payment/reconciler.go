package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shopstack/payment-service/internal/domain/outbox"
	"github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/gateway"
)

// Reconciler orchestrates the payment lifecycle against the gateway: it
// creates gateway orders, applies verified confirmations from callbacks and
// webhooks, issues refunds and resolves payments whose capture outcome was
// lost. All status changes go through the state machine and the repository's
// compare-and-update, so concurrent confirmations cannot double-apply.
type Reconciler struct {
	repo     payment.Repository
	gateway  gateway.Client
	verifier *gateway.SignatureVerifier
	outbox   OutboxWriter
	tx       TransactionManager
	cache    RecordCache
	logger   zerolog.Logger

	defaultCurrency string
}

// NewReconciler creates a Reconciler. cache may be nil.
func NewReconciler(
	repo payment.Repository,
	gw gateway.Client,
	verifier *gateway.SignatureVerifier,
	outboxWriter OutboxWriter,
	txManager TransactionManager,
	cache RecordCache,
	defaultCurrency string,
	logger zerolog.Logger,
) *Reconciler {
	if cache == nil {
		cache = noopCache{}
	}
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}
	return &Reconciler{
		repo:            repo,
		gateway:         gw,
		verifier:        verifier,
		outbox:          outboxWriter,
		tx:              txManager,
		cache:           cache,
		defaultCurrency: defaultCurrency,
		logger:          logger.With().Str("component", "reconciler").Logger(),
	}
}

// GetPayment returns a payment record, consulting the cache first.
func (r *Reconciler) GetPayment(ctx context.Context, paymentID string) (*payment.Record, error) {
	if rec := r.cache.Get(ctx, paymentID); rec != nil {
		return rec, nil
	}
	rec, err := r.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, rec)
	return rec, nil
}

// ListPayments lists payment records.
func (r *Reconciler) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Record, error) {
	return r.repo.List(ctx, filter)
}

// transition applies one state-machine event to rec atomically: the
// conditional status update, the audit event and (optionally) the outbox entry
// commit or roll back together. The cache entry is dropped only after commit.
// On success rec is updated in place to the new status.
func (r *Reconciler) transition(
	ctx context.Context,
	rec *payment.Record,
	event payment.Event,
	m payment.StatusMutations,
	eventType string,
	publish bool,
	extra map[string]any,
) error {
	next, err := payment.NextStatus(rec.Status, event)
	if err != nil {
		return err
	}

	data := map[string]any{
		"payment_id": rec.PaymentID,
		"order_id":   rec.OrderID,
		"user_id":    rec.UserID,
		"amount":     rec.Amount.String(),
		"currency":   rec.Currency,
		"status":     string(next),
		"from":       string(rec.Status),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		data[k] = v
	}

	err = r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.repo.CompareAndUpdateStatus(txCtx, rec.PaymentID, rec.Status, next, m); err != nil {
			return err
		}
		if err := r.repo.AddEvent(txCtx, &payment.RecordEvent{
			ID:        uuid.New(),
			PaymentID: rec.PaymentID,
			EventType: eventType,
			EventData: data,
		}); err != nil {
			return err
		}
		if publish {
			return r.outbox.Insert(txCtx, outbox.NewEntry("payment", rec.PaymentID, eventType, data))
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.cache.Invalidate(ctx, rec.PaymentID)
	rec.Status = next
	if m.GatewayPaymentID != nil {
		rec.GatewayPaymentID = m.GatewayPaymentID
	}
	if m.PaidAt != nil && rec.PaidAt == nil {
		rec.PaidAt = m.PaidAt
	}

	r.logger.Info().
		Str("payment_id", rec.PaymentID).
		Str("event", string(event)).
		Str("status", string(next)).
		Msg("payment transitioned")
	return nil
}
