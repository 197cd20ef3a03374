package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/gateway"
)

// Webhook outcomes, used for logging and metrics.
const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookUnmatched = "unmatched"
)

// WebhookResult describes how a webhook event was handled.
type WebhookResult struct {
	Event     string
	Outcome   string
	PaymentID string
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookPayment `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity webhookRefund `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type webhookPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

type webhookRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// HandleWebhook applies a server-to-server gateway notification. The raw body
// bytes are verified against the webhook secret before parsing; a body that
// fails verification causes no state change at all. Webhooks are delivered
// at-least-once and may race the client callback, so every path here must be
// idempotent.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !r.verifier.VerifyWebhookSignature(body, signature) {
		r.logger.Warn().Msg("webhook signature rejected")
		return nil, errors.ErrSignatureMismatch
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse webhook body: %w", errors.ErrInvalidInput)
	}

	switch env.Event {
	case "payment.captured":
		return r.webhookCaptured(ctx, env.Event, env.Payload.Payment.Entity)
	case "payment.failed":
		return r.webhookFailed(ctx, env.Event, env.Payload.Payment.Entity)
	case "refund.processed":
		return r.webhookRefunded(ctx, env.Event, env.Payload.Refund.Entity)
	default:
		r.logger.Debug().Str("event", env.Event).Msg("ignoring webhook event")
		return &WebhookResult{Event: env.Event, Outcome: WebhookIgnored}, nil
	}
}

// lookupByGateway finds the record a webhook refers to. The payment id index
// only matches once a callback recorded the gateway payment id, so a webhook
// that arrives first falls back to the gateway order id.
func (r *Reconciler) lookupByGateway(ctx context.Context, gatewayPaymentID, gatewayOrderID string) (*payment.Record, error) {
	rec, err := r.repo.GetByGatewayPaymentID(ctx, gatewayPaymentID)
	if err == nil {
		return rec, nil
	}
	if !stderrors.Is(err, errors.ErrPaymentNotFound) || gatewayOrderID == "" {
		return nil, err
	}
	return r.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
}

func (r *Reconciler) webhookCaptured(ctx context.Context, event string, p webhookPayment) (*WebhookResult, error) {
	rec, err := r.lookupByGateway(ctx, p.ID, p.OrderID)
	if err != nil {
		if stderrors.Is(err, errors.ErrPaymentNotFound) {
			r.logger.Warn().
				Str("gateway_payment_id", p.ID).
				Str("gateway_order_id", p.OrderID).
				Msg("webhook for unknown payment")
			return &WebhookResult{Event: event, Outcome: WebhookUnmatched}, nil
		}
		return nil, err
	}

	if rec.Status == payment.StatusCompleted {
		if rec.HasGatewayPayment(p.ID) {
			return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
		}
		return nil, errors.ErrPaymentConflict
	}
	// Terminal records beyond completed (refunded after capture) also count
	// as duplicates: the capture was applied earlier.
	if rec.Status == payment.StatusRefunded && rec.HasGatewayPayment(p.ID) {
		return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
	}

	now := time.Now()
	err = r.transition(ctx, rec, payment.EventCaptureConfirmed,
		payment.StatusMutations{
			GatewayPaymentID: &p.ID,
			PaidAt:           &now,
		},
		"payment.completed", true,
		map[string]any{"gateway_payment_id": p.ID, "source": "webhook"},
	)
	if err != nil {
		if stderrors.Is(err, errors.ErrConcurrentModification) {
			fresh, getErr := r.repo.GetByPaymentID(ctx, rec.PaymentID)
			if getErr == nil && fresh.Status == payment.StatusCompleted && fresh.HasGatewayPayment(p.ID) {
				return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
			}
		}
		return nil, err
	}
	return &WebhookResult{Event: event, Outcome: WebhookApplied, PaymentID: rec.PaymentID}, nil
}

func (r *Reconciler) webhookFailed(ctx context.Context, event string, p webhookPayment) (*WebhookResult, error) {
	rec, err := r.lookupByGateway(ctx, p.ID, p.OrderID)
	if err != nil {
		if stderrors.Is(err, errors.ErrPaymentNotFound) {
			return &WebhookResult{Event: event, Outcome: WebhookUnmatched}, nil
		}
		return nil, err
	}

	if rec.Status == payment.StatusFailed {
		return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
	}
	// A failure notification for a payment that already completed is stale
	// gateway noise, not a reason to regress the record.
	if rec.Status == payment.StatusCompleted {
		r.logger.Warn().
			Str("payment_id", rec.PaymentID).
			Msg("failure webhook for completed payment ignored")
		return &WebhookResult{Event: event, Outcome: WebhookIgnored, PaymentID: rec.PaymentID}, nil
	}

	errMsg := payment.Truncate(p.ErrorDescription)
	raw, _ := json.Marshal(p)
	gwResp := payment.Truncate(string(raw))
	err = r.transition(ctx, rec, payment.EventCaptureFailed,
		payment.StatusMutations{
			GatewayPaymentID: &p.ID,
			ErrorMessage:     &errMsg,
			GatewayResponse:  &gwResp,
		},
		"payment.failed", true,
		map[string]any{"gateway_payment_id": p.ID, "error": errMsg, "source": "webhook"},
	)
	if err != nil {
		if stderrors.Is(err, errors.ErrConcurrentModification) {
			fresh, getErr := r.repo.GetByPaymentID(ctx, rec.PaymentID)
			if getErr == nil && fresh.Status == payment.StatusFailed {
				return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
			}
		}
		return nil, err
	}
	return &WebhookResult{Event: event, Outcome: WebhookApplied, PaymentID: rec.PaymentID}, nil
}

func (r *Reconciler) webhookRefunded(ctx context.Context, event string, rf webhookRefund) (*WebhookResult, error) {
	rec, err := r.lookupByGateway(ctx, rf.PaymentID, "")
	if err != nil {
		if stderrors.Is(err, errors.ErrPaymentNotFound) {
			return &WebhookResult{Event: event, Outcome: WebhookUnmatched}, nil
		}
		return nil, err
	}

	if rec.Status == payment.StatusRefunded {
		return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
	}

	// A refund can never exceed what was captured. The gateway should make
	// this impossible, so an oversized amount means the notification refers
	// to some other charge; applying it would corrupt the record.
	if rf.Amount > gateway.MinorUnits(rec.Amount) {
		r.logger.Warn().
			Str("payment_id", rec.PaymentID).
			Str("gateway_refund_id", rf.ID).
			Int64("refund_amount", rf.Amount).
			Str("captured_amount", rec.Amount.String()).
			Msg("refund webhook exceeds captured amount")
		return nil, errors.NewValidationError("amount", "refund exceeds captured amount")
	}

	err = r.transition(ctx, rec, payment.EventRefundConfirmed,
		payment.StatusMutations{},
		"payment.refunded", true,
		map[string]any{"gateway_refund_id": rf.ID, "source": "webhook"},
	)
	if err != nil {
		if stderrors.Is(err, errors.ErrConcurrentModification) {
			fresh, getErr := r.repo.GetByPaymentID(ctx, rec.PaymentID)
			if getErr == nil && fresh.Status == payment.StatusRefunded {
				return &WebhookResult{Event: event, Outcome: WebhookDuplicate, PaymentID: rec.PaymentID}, nil
			}
		}
		return nil, err
	}
	return &WebhookResult{Event: event, Outcome: WebhookApplied, PaymentID: rec.PaymentID}, nil
}
