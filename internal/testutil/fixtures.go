package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopstack/payment-service/internal/domain/payment"
)

// NewProcessingRecord returns a record that has a gateway order and awaits
// capture confirmation.
func NewProcessingRecord(amount string) *payment.Record {
	now := time.Now()
	return &payment.Record{
		PaymentID:      "PAY-" + uuid.New().String(),
		OrderID:        "order-" + uuid.New().String()[:8],
		UserID:         "user-1",
		Amount:         decimal.RequireFromString(amount),
		Currency:       "INR",
		Status:         payment.StatusProcessing,
		Method:         payment.MethodUPI,
		Receipt:        "rcpt_" + uuid.New().String()[:8],
		GatewayOrderID: "order_gw_" + uuid.New().String()[:8],
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewCompletedRecord returns a record whose capture was confirmed.
func NewCompletedRecord(amount, gatewayPaymentID string) *payment.Record {
	rec := NewProcessingRecord(amount)
	rec.Status = payment.StatusCompleted
	rec.GatewayPaymentID = &gatewayPaymentID
	paidAt := time.Now()
	rec.PaidAt = &paidAt
	return rec
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
