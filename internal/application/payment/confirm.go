package payment

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
)

// ConfirmRequest holds the checkout callback the client relays after paying.
type ConfirmRequest struct {
	PaymentID        string
	GatewayPaymentID string
	Signature        string
}

// ConfirmPayment applies a client checkout callback. The signature is
// verified before anything else; an invalid signature leaves the record
// completely untouched. Replaying a confirmation that already succeeded with
// the same gateway payment id is an idempotent success, while a confirmation
// naming a different gateway payment id for a completed record is a conflict.
func (r *Reconciler) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*payment.Record, error) {
	rec, err := r.repo.GetByPaymentID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if !r.verifier.VerifyClientSignature(rec.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		r.logger.Warn().
			Str("payment_id", rec.PaymentID).
			Str("gateway_payment_id", req.GatewayPaymentID).
			Msg("client callback signature rejected")
		return nil, errors.ErrSignatureMismatch
	}

	if rec.Status == payment.StatusCompleted {
		if rec.HasGatewayPayment(req.GatewayPaymentID) {
			return rec, nil
		}
		return nil, errors.ErrPaymentConflict
	}

	now := time.Now()
	err = r.transition(ctx, rec, payment.EventCaptureConfirmed,
		payment.StatusMutations{
			GatewayPaymentID: &req.GatewayPaymentID,
			GatewaySignature: &req.Signature,
			PaidAt:           &now,
		},
		"payment.completed", true,
		map[string]any{"gateway_payment_id": req.GatewayPaymentID, "source": "callback"},
	)
	if err != nil {
		// A concurrent webhook may have completed the payment first. If it
		// confirmed the same gateway payment, this callback is a duplicate.
		if stderrors.Is(err, errors.ErrConcurrentModification) {
			fresh, getErr := r.repo.GetByPaymentID(ctx, req.PaymentID)
			if getErr == nil && fresh.Status == payment.StatusCompleted && fresh.HasGatewayPayment(req.GatewayPaymentID) {
				return fresh, nil
			}
		}
		return nil, err
	}
	return rec, nil
}
