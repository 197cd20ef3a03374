package payment

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/gateway"
	"github.com/shopstack/payment-service/pkg/retry"
)

// SweepResult summarizes one pass over stale processing payments.
type SweepResult struct {
	Examined  int
	Completed int
	Failed    int
	Pending   int
}

// gatewayReadRetry retries only transient transport failures. Rejections are
// authoritative answers and must not be retried.
func gatewayReadRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = func(err error) bool {
		return stderrors.Is(err, errors.ErrGatewayUnavailable)
	}
	return cfg
}

// SweepStale resolves payments stuck in processing longer than staleAfter.
// A payment lands here when the capture outcome was lost: the gateway call
// timed out, or both the callback and the webhook went missing. The sweep
// always asks the gateway what actually happened first and applies that
// answer through the normal transition path; the one money-moving call it
// issues is capturing a charge the fetch proved authorized and uncaptured.
func (r *Reconciler) SweepStale(ctx context.Context, staleAfter time.Duration, batchSize int) (*SweepResult, error) {
	status := payment.StatusProcessing
	cutoff := time.Now().Add(-staleAfter)

	records, err := r.repo.List(ctx, payment.ListFilter{
		Status:        &status,
		UpdatedBefore: &cutoff,
		Limit:         batchSize,
	})
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Examined: len(records)}
	for _, rec := range records {
		outcome, err := r.ReconcilePayment(ctx, rec.PaymentID)
		if err != nil {
			if stderrors.Is(err, errors.ErrGatewayUnavailable) {
				// Gateway is down; the rest of the batch will fail too.
				return res, err
			}
			r.logger.Error().Err(err).
				Str("payment_id", rec.PaymentID).
				Msg("reconciliation failed")
			res.Pending++
			continue
		}
		switch outcome {
		case payment.StatusCompleted:
			res.Completed++
		case payment.StatusFailed:
			res.Failed++
		default:
			res.Pending++
		}
	}
	return res, nil
}

// ReconcilePayment fetches the gateway's authoritative state for one payment
// and settles the record. It returns the resulting status; a record the
// gateway still shows in flight keeps its current status. Fetch-before-retry:
// capturing blindly could charge twice, so a capture is only ever issued
// after a fetch proved the charge authorized and uncaptured.
func (r *Reconciler) ReconcilePayment(ctx context.Context, paymentID string) (payment.Status, error) {
	rec, err := r.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if rec.Status != payment.StatusProcessing {
		return rec.Status, nil
	}

	if rec.GatewayPaymentID != nil {
		return r.reconcileByPayment(ctx, rec)
	}
	return r.reconcileByOrder(ctx, rec)
}

func (r *Reconciler) reconcileByPayment(ctx context.Context, rec *payment.Record) (payment.Status, error) {
	state, err := retry.DoWithResult(ctx, gatewayReadRetry(), func() (*gateway.PaymentState, error) {
		return r.gateway.FetchPayment(ctx, *rec.GatewayPaymentID)
	})
	if err != nil {
		return rec.Status, err
	}

	switch {
	case state.Captured || state.Status == gateway.PaymentStateCaptured:
		now := time.Now()
		err = r.transition(ctx, rec, payment.EventCaptureConfirmed,
			payment.StatusMutations{PaidAt: &now},
			"payment.completed", true,
			map[string]any{"gateway_payment_id": state.ID, "source": "reconciler"},
		)
	case state.Status == gateway.PaymentStateFailed:
		errMsg := payment.Truncate(state.ErrorMessage)
		err = r.transition(ctx, rec, payment.EventCaptureFailed,
			payment.StatusMutations{ErrorMessage: &errMsg},
			"payment.failed", true,
			map[string]any{"gateway_payment_id": state.ID, "error": errMsg, "source": "reconciler"},
		)
	case state.Status == gateway.PaymentStateAuthorized:
		return r.captureAuthorized(ctx, rec, state)
	default:
		// Still created on the gateway side; leave it for the next sweep.
		return rec.Status, nil
	}
	if err != nil {
		return rec.Status, r.swallowLostRace(ctx, rec.PaymentID, err)
	}
	return rec.Status, nil
}

// captureAuthorized finalizes a payment whose auto-capture never landed. The
// fetch just proved the charge is authorized and uncaptured, so issuing the
// capture once is safe; left alone the gateway would eventually auto-refund
// the authorization. The capture call itself is never retried: if its
// response is lost the record stays processing and the next sweep's fetch
// disambiguates.
func (r *Reconciler) captureAuthorized(ctx context.Context, rec *payment.Record, state *gateway.PaymentState) (payment.Status, error) {
	res, err := r.gateway.CapturePayment(ctx, state.ID, rec.Amount, rec.Currency)
	if err != nil {
		r.logger.Error().Err(err).
			Str("payment_id", rec.PaymentID).
			Str("gateway_payment_id", state.ID).
			Msg("capture of authorized payment failed")
		return rec.Status, err
	}
	if res.Status != gateway.PaymentStateCaptured {
		return rec.Status, nil
	}

	now := time.Now()
	err = r.transition(ctx, rec, payment.EventCaptureConfirmed,
		payment.StatusMutations{PaidAt: &now},
		"payment.completed", true,
		map[string]any{"gateway_payment_id": state.ID, "source": "reconciler"},
	)
	if err != nil {
		return rec.Status, r.swallowLostRace(ctx, rec.PaymentID, err)
	}
	return rec.Status, nil
}

// reconcileByOrder handles records that never saw a callback, so no gateway
// payment id was recorded. The order view tells us whether it was paid.
func (r *Reconciler) reconcileByOrder(ctx context.Context, rec *payment.Record) (payment.Status, error) {
	order, err := retry.DoWithResult(ctx, gatewayReadRetry(), func() (*gateway.Order, error) {
		return r.gateway.FetchOrder(ctx, rec.GatewayOrderID)
	})
	if err != nil {
		return rec.Status, err
	}

	if order.Status != gateway.OrderStatePaid {
		return rec.Status, nil
	}

	// Paid, but the gateway payment id is unknown until a webhook or callback
	// supplies it. The conditional update leaves gateway_payment_id alone.
	now := time.Now()
	err = r.transition(ctx, rec, payment.EventCaptureConfirmed,
		payment.StatusMutations{PaidAt: &now},
		"payment.completed", true,
		map[string]any{"gateway_order_id": rec.GatewayOrderID, "source": "reconciler"},
	)
	if err != nil {
		return rec.Status, r.swallowLostRace(ctx, rec.PaymentID, err)
	}
	return rec.Status, nil
}

// swallowLostRace treats a compare-and-update loss as success when the record
// meanwhile reached a terminal or completed state through another path.
func (r *Reconciler) swallowLostRace(ctx context.Context, paymentID string, cause error) error {
	if !stderrors.Is(cause, errors.ErrConcurrentModification) {
		return cause
	}
	fresh, err := r.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return cause
	}
	if fresh.Status != payment.StatusProcessing {
		return nil
	}
	return cause
}
