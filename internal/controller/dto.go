package controller

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopstack/payment-service/internal/domain/payment"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, wire naming).
// Controllers convert these to application layer requests before calling
// business logic. Amounts travel as JSON numbers in major units.

// InitiatePaymentRequest holds the input for starting a payment.
type InitiatePaymentRequest struct {
	OrderID     string          `json:"order_id" validate:"required"`
	UserID      string          `json:"user_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	Method      string          `json:"method" validate:"omitempty,oneof=card net_banking upi wallet emi bank_transfer"`
	Description string          `json:"description" validate:"omitempty,max=255"`
}

// VerifyPaymentRequest holds the checkout callback relayed by the client.
type VerifyPaymentRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// RefundPaymentRequest holds the input for refunding a payment. A missing
// amount means a full refund.
type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"omitempty,max=255"`
}

// CancelPaymentRequest holds the input for cancelling a payment.
type CancelPaymentRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	PaymentID        string          `json:"payment_id"`
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method,omitempty"`
	Receipt          string          `json:"receipt,omitempty"`
	Description      string          `json:"description,omitempty"`
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// FromRecord converts a domain payment record to an API response. Gateway
// signatures and raw gateway responses are deliberately never exposed.
func FromRecord(rec *payment.Record) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:        rec.PaymentID,
		OrderID:          rec.OrderID,
		UserID:           rec.UserID,
		Amount:           rec.Amount,
		Currency:         rec.Currency,
		Status:           string(rec.Status),
		Method:           string(rec.Method),
		Receipt:          rec.Receipt,
		Description:      rec.Description,
		GatewayOrderID:   rec.GatewayOrderID,
		GatewayPaymentID: rec.GatewayPaymentID,
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		PaidAt:           rec.PaidAt,
	}
}
