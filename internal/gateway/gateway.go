package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Payment states as reported by the gateway. These are the gateway's own
// vocabulary, translated into record transitions by the reconciler.
const (
	PaymentStateCreated    = "created"
	PaymentStateAuthorized = "authorized"
	PaymentStateCaptured   = "captured"
	PaymentStateFailed     = "failed"
	PaymentStateRefunded   = "refunded"

	OrderStatePaid = "paid"
)

// Order is the gateway's view of an order.
type Order struct {
	ID         string
	Status     string
	AmountPaid int64 // minor units
	Receipt    string
}

// PaymentState is the gateway's authoritative view of a payment. Amount is in
// minor units, as the gateway reports it.
type PaymentState struct {
	ID           string
	OrderID      string
	Status       string
	Amount       int64
	Currency     string
	Method       string
	Captured     bool
	ErrorMessage string
}

// CaptureResult is the outcome of a capture call.
type CaptureResult struct {
	PaymentID string
	Status    string
	Amount    int64
}

// Client wraps the external payment gateway. All amounts cross this boundary
// in major units and are converted to the gateway's minor units internally.
//
// CapturePayment and CreateRefund must never be retried blindly: a timeout
// means the outcome is unknown and callers must disambiguate with
// FetchPayment first. FetchPayment and FetchOrder are read-only and safe to
// retry.
type Client interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)
	CapturePayment(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, currency string) (*CaptureResult, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*PaymentState, error)
	CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error)
	FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error)
}

// MinorUnits converts a major-unit amount to the gateway's minor units
// (×100 for sub-unit currencies), truncating rather than rounding to match
// gateway expectations.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}
