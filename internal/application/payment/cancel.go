package payment

import (
	"context"
	"fmt"

	"github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/gateway"
	"github.com/shopstack/payment-service/pkg/retry"
)

// CancelPayment abandons a payment before any capture was confirmed. For a
// processing record the gateway is asked first: the capture response may have
// been lost, and cancelling a payment that actually moved money would leave
// the record contradicting the gateway. A cancel racing a concurrent capture
// loses the compare-and-update instead. Cancellations are recorded in the
// audit trail but not published: downstream consumers only care about money
// movement.
func (r *Reconciler) CancelPayment(ctx context.Context, paymentID, reason string) (*payment.Record, error) {
	rec, err := r.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if rec.Status == payment.StatusCancelled {
		return rec, nil
	}

	if rec.Status == payment.StatusProcessing {
		captured, err := r.capturedAtGateway(ctx, rec)
		if err != nil {
			// Fail safe: without an authoritative answer the payment might
			// already be captured, so refuse to cancel.
			return nil, fmt.Errorf("cancel payment %s: %w", paymentID, err)
		}
		if captured {
			return nil, fmt.Errorf("payment %s already captured at gateway: %w",
				paymentID, errors.ErrInvalidStateTransition)
		}
	}

	err = r.transition(ctx, rec, payment.EventCancelled,
		payment.StatusMutations{},
		"payment.cancelled", false,
		map[string]any{"reason": reason},
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// capturedAtGateway reports whether the gateway already captured this payment.
func (r *Reconciler) capturedAtGateway(ctx context.Context, rec *payment.Record) (bool, error) {
	if rec.GatewayPaymentID != nil {
		state, err := retry.DoWithResult(ctx, gatewayReadRetry(), func() (*gateway.PaymentState, error) {
			return r.gateway.FetchPayment(ctx, *rec.GatewayPaymentID)
		})
		if err != nil {
			return false, err
		}
		return state.Captured || state.Status == gateway.PaymentStateCaptured, nil
	}

	order, err := retry.DoWithResult(ctx, gatewayReadRetry(), func() (*gateway.Order, error) {
		return r.gateway.FetchOrder(ctx, rec.GatewayOrderID)
	})
	if err != nil {
		return false, err
	}
	return order.Status == gateway.OrderStatePaid, nil
}
