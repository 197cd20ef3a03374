package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopstack/payment-service/internal/domain/outbox"
	"github.com/shopstack/payment-service/internal/domain/payment"
)

// InitiateRequest holds the input for starting a payment.
type InitiateRequest struct {
	OrderID     string
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Method      payment.Method
	Description string
}

// InitiatePayment creates a payment record, registers an order with the
// gateway and moves the record to processing. The gateway call happens before
// anything is persisted: if persistence then fails, the gateway order is
// orphaned, which is harmless because nothing references it and it expires on
// the gateway side.
func (r *Reconciler) InitiatePayment(ctx context.Context, req InitiateRequest) (*payment.Record, error) {
	currency := req.Currency
	if currency == "" {
		currency = r.defaultCurrency
	}

	rec, err := payment.NewRecord(req.OrderID, req.UserID, req.Amount, currency, req.Method)
	if err != nil {
		return nil, err
	}
	rec.Description = req.Description

	gatewayOrderID, err := r.gateway.CreateOrder(ctx, rec.Amount, rec.Currency, rec.Receipt)
	if err != nil {
		r.logger.Error().Err(err).
			Str("order_id", req.OrderID).
			Msg("gateway order creation failed")
		return nil, err
	}
	rec.GatewayOrderID = gatewayOrderID

	next, err := payment.NextStatus(rec.Status, payment.EventOrderCreated)
	if err != nil {
		return nil, err
	}
	rec.Status = next

	data := map[string]any{
		"payment_id":       rec.PaymentID,
		"order_id":         rec.OrderID,
		"user_id":          rec.UserID,
		"gateway_order_id": rec.GatewayOrderID,
		"amount":           rec.Amount.String(),
		"currency":         rec.Currency,
		"status":           string(rec.Status),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}

	err = r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.repo.Create(txCtx, rec); err != nil {
			return err
		}
		if err := r.repo.AddEvent(txCtx, &payment.RecordEvent{
			ID:        uuid.New(),
			PaymentID: rec.PaymentID,
			EventType: "payment.created",
			EventData: data,
		}); err != nil {
			return err
		}
		return r.outbox.Insert(txCtx, outbox.NewEntry("payment", rec.PaymentID, "payment.created", data))
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("payment_id", rec.PaymentID).
		Str("gateway_order_id", rec.GatewayOrderID).
		Str("amount", rec.Amount.String()).
		Msg("payment initiated")
	return rec, nil
}
