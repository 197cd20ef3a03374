package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
)

// RazorpayClient implements Client against the Razorpay API. Credentials are
// immutable after construction; the client is stateless and safe to share.
type RazorpayClient struct {
	client  *razorpay.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRazorpayClient creates a Razorpay-backed gateway client. Every call is
// bounded by timeout in addition to any caller-supplied context deadline.
func NewRazorpayClient(keyID, keySecret string, timeout time.Duration, logger zerolog.Logger) *RazorpayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RazorpayClient{
		client:  razorpay.NewClient(keyID, keySecret),
		timeout: timeout,
		logger:  logger.With().Str("component", "razorpay").Logger(),
	}
}

// CreateOrder creates an auto-capture order and returns the gateway order id.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	data := map[string]interface{}{
		"amount":          MinorUnits(amount),
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}

	body, err := c.call(ctx, "order.create", func() (map[string]interface{}, error) {
		return c.client.Order.Create(data, nil)
	})
	if err != nil {
		return "", err
	}

	orderID := str(body, "id")
	if orderID == "" {
		return "", fmt.Errorf("order.create: gateway returned no order id: %w", domainErrors.ErrGatewayRejected)
	}
	return orderID, nil
}

// CapturePayment finalizes an authorized charge. A timeout here means the
// capture outcome is unknown, not failed; the returned error is classified
// transient and the caller must fetch before any retry.
func (c *RazorpayClient) CapturePayment(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, currency string) (*CaptureResult, error) {
	data := map[string]interface{}{"currency": currency}

	body, err := c.call(ctx, "payment.capture", func() (map[string]interface{}, error) {
		return c.client.Payment.Capture(gatewayPaymentID, int(MinorUnits(amount)), data, nil)
	})
	if err != nil {
		return nil, err
	}

	return &CaptureResult{
		PaymentID: str(body, "id"),
		Status:    str(body, "status"),
		Amount:    i64(body, "amount"),
	}, nil
}

// FetchPayment returns the gateway's authoritative view of a payment. Safe to
// retry.
func (c *RazorpayClient) FetchPayment(ctx context.Context, gatewayPaymentID string) (*PaymentState, error) {
	body, err := c.call(ctx, "payment.fetch", func() (map[string]interface{}, error) {
		return c.client.Payment.Fetch(gatewayPaymentID, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	captured, _ := body["captured"].(bool)
	return &PaymentState{
		ID:           str(body, "id"),
		OrderID:      str(body, "order_id"),
		Status:       str(body, "status"),
		Amount:       i64(body, "amount"),
		Currency:     str(body, "currency"),
		Method:       str(body, "method"),
		Captured:     captured,
		ErrorMessage: str(body, "error_description"),
	}, nil
}

// CreateRefund refunds a captured payment and returns the gateway refund id.
// Never retried blindly for the same reason as capture.
func (c *RazorpayClient) CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	body, err := c.call(ctx, "payment.refund", func() (map[string]interface{}, error) {
		return c.client.Payment.Refund(gatewayPaymentID, int(MinorUnits(amount)), map[string]interface{}{}, nil)
	})
	if err != nil {
		return "", err
	}

	refundID := str(body, "id")
	if refundID == "" {
		return "", fmt.Errorf("payment.refund: gateway returned no refund id: %w", domainErrors.ErrGatewayRejected)
	}
	return refundID, nil
}

// FetchOrder returns the gateway's view of an order. Safe to retry.
func (c *RazorpayClient) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	body, err := c.call(ctx, "order.fetch", func() (map[string]interface{}, error) {
		return c.client.Order.Fetch(gatewayOrderID, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	return &Order{
		ID:         str(body, "id"),
		Status:     str(body, "status"),
		AmountPaid: i64(body, "amount_paid"),
		Receipt:    str(body, "receipt"),
	}, nil
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call runs one blocking SDK call under the configured timeout. The SDK does
// not take a context, so the call runs in its own goroutine and the result is
// discarded if the deadline fires first.
func (c *RazorpayClient) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		body, err := fn()
		ch <- callResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		c.logger.Warn().Str("op", op).Err(ctx.Err()).Msg("gateway call timed out")
		return nil, fmt.Errorf("%s: %v: %w", op, ctx.Err(), domainErrors.ErrGatewayUnavailable)
	case res := <-ch:
		if res.err != nil {
			return nil, classify(op, res.err)
		}
		return res.body, nil
	}
}

// classify splits gateway failures into ErrGatewayRejected (the gateway
// answered and said no) and ErrGatewayUnavailable (transient, retryable for
// idempotent calls). Only the SDK's BadRequestError is a provable rejection;
// its ServerError and GatewayError types, transport failures and anything
// unrecognized are treated transient, so a gateway 5xx storm trips the
// circuit breaker instead of being mistaken for an authoritative answer.
func classify(op string, err error) error {
	var badReq *rzperrors.BadRequestError
	if errors.As(err, &badReq) {
		return fmt.Errorf("%s: %v: %w", op, err, domainErrors.ErrGatewayRejected)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domainErrors.ErrGatewayUnavailable)
}

func str(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

// i64 reads a numeric field. JSON numbers decode as float64.
func i64(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
