package payment

import (
	"context"
	stderrors "errors"

	"github.com/shopspring/decimal"

	"github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
)

// RefundRequest holds the input for refunding a completed payment. A zero
// Amount refunds the full captured amount.
type RefundRequest struct {
	PaymentID string
	Amount    decimal.Decimal
	Reason    string
}

// RefundPayment refunds a completed payment through the gateway and moves the
// record to refunded. The refund call is never retried blindly: if the
// gateway response is lost, the refund.processed webhook or the
// reconciliation sweep settles the record.
func (r *Reconciler) RefundPayment(ctx context.Context, req RefundRequest) (*payment.Record, error) {
	rec, err := r.repo.GetByPaymentID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	// Only completed payments hold captured funds. Checking up front gives
	// callers a precise error before any gateway traffic.
	if !payment.CanTransition(rec.Status, payment.EventRefundConfirmed) {
		return nil, errors.NewDomainError(
			"invalid_transition",
			"cannot refund payment in status "+string(rec.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	if rec.GatewayPaymentID == nil {
		return nil, errors.NewDomainError(
			"invalid_transition",
			"payment has no captured gateway payment",
			errors.ErrInvalidStateTransition,
		)
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = rec.Amount
	}
	if err := payment.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(rec.Amount) {
		return nil, errors.NewValidationError("amount", "refund exceeds captured amount")
	}

	refundID, err := r.gateway.CreateRefund(ctx, *rec.GatewayPaymentID, amount)
	if err != nil {
		r.logger.Error().Err(err).
			Str("payment_id", rec.PaymentID).
			Msg("gateway refund failed")
		return nil, err
	}

	err = r.transition(ctx, rec, payment.EventRefundConfirmed,
		payment.StatusMutations{},
		"payment.refunded", true,
		map[string]any{
			"gateway_refund_id": refundID,
			"refund_amount":     amount.String(),
			"reason":            req.Reason,
			"source":            "api",
		},
	)
	if err != nil {
		// The refund.processed webhook may settle the record between the
		// gateway call and the conditional update. The refund happened either
		// way, so losing that race is success.
		if stderrors.Is(err, errors.ErrConcurrentModification) {
			fresh, getErr := r.repo.GetByPaymentID(ctx, rec.PaymentID)
			if getErr == nil && fresh.Status == payment.StatusRefunded {
				return fresh, nil
			}
		}
		return nil, err
	}
	return rec, nil
}
