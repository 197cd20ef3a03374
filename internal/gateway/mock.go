package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockClient is an in-memory gateway for tests. Default behavior succeeds;
// individual calls are overridable through function fields, and every call is
// counted so tests can assert how often money-moving operations were issued.
type MockClient struct {
	mu    sync.Mutex
	calls map[string]int

	CreateOrderFunc    func(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)
	CapturePaymentFunc func(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, currency string) (*CaptureResult, error)
	FetchPaymentFunc   func(ctx context.Context, gatewayPaymentID string) (*PaymentState, error)
	CreateRefundFunc   func(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error)
	FetchOrderFunc     func(ctx context.Context, gatewayOrderID string) (*Order, error)
}

// NewMockClient creates a mock gateway client.
func NewMockClient() *MockClient {
	return &MockClient{calls: make(map[string]int)}
}

// Calls returns how many times the named operation was invoked.
func (m *MockClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockClient) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *MockClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	m.record("create_order")
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, amount, currency, receipt)
	}
	return "order_" + uuid.New().String()[:8], nil
}

func (m *MockClient) CapturePayment(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, currency string) (*CaptureResult, error) {
	m.record("capture_payment")
	if m.CapturePaymentFunc != nil {
		return m.CapturePaymentFunc(ctx, gatewayPaymentID, amount, currency)
	}
	return &CaptureResult{
		PaymentID: gatewayPaymentID,
		Status:    PaymentStateCaptured,
		Amount:    MinorUnits(amount),
	}, nil
}

func (m *MockClient) FetchPayment(ctx context.Context, gatewayPaymentID string) (*PaymentState, error) {
	m.record("fetch_payment")
	if m.FetchPaymentFunc != nil {
		return m.FetchPaymentFunc(ctx, gatewayPaymentID)
	}
	return &PaymentState{
		ID:       gatewayPaymentID,
		Status:   PaymentStateCaptured,
		Captured: true,
	}, nil
}

func (m *MockClient) CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error) {
	m.record("create_refund")
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, gatewayPaymentID, amount)
	}
	return fmt.Sprintf("rfnd_%s", uuid.New().String()[:8]), nil
}

func (m *MockClient) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	m.record("fetch_order")
	if m.FetchOrderFunc != nil {
		return m.FetchOrderFunc(ctx, gatewayOrderID)
	}
	return &Order{ID: gatewayOrderID, Status: "created"}, nil
}
