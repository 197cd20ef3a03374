package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
)

// BreakerClient wraps a gateway client with a circuit breaker. When the
// breaker is open, calls fail fast with ErrGatewayUnavailable instead of
// piling up on a struggling gateway. Fatal rejections do not count as breaker
// failures: the gateway answered, it just said no.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps inner with a circuit breaker.
func NewBreakerClient(inner Client, name string) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domainErrors.ErrGatewayRejected)
		},
	})
	return &BreakerClient{inner: inner, cb: cb}
}

func (c *BreakerClient) execute(fn func() (any, error)) (any, error) {
	v, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domainErrors.NewDomainError("circuit_open", "gateway circuit breaker open", domainErrors.ErrGatewayUnavailable)
	}
	return v, err
}

func (c *BreakerClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	v, err := c.execute(func() (any, error) {
		return c.inner.CreateOrder(ctx, amount, currency, receipt)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *BreakerClient) CapturePayment(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, currency string) (*CaptureResult, error) {
	v, err := c.execute(func() (any, error) {
		return c.inner.CapturePayment(ctx, gatewayPaymentID, amount, currency)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CaptureResult), nil
}

func (c *BreakerClient) FetchPayment(ctx context.Context, gatewayPaymentID string) (*PaymentState, error) {
	v, err := c.execute(func() (any, error) {
		return c.inner.FetchPayment(ctx, gatewayPaymentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PaymentState), nil
}

func (c *BreakerClient) CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	v, err := c.execute(func() (any, error) {
		return c.inner.CreateRefund(ctx, gatewayPaymentID, amount)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *BreakerClient) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	v, err := c.execute(func() (any, error) {
		return c.inner.FetchOrder(ctx, gatewayOrderID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}
