package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shopstack/payment-service/internal/domain/errors"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Method is the payment instrument category. Informational only, never used
// for control flow.
type Method string

const (
	MethodCard         Method = "card"
	MethodNetBanking   Method = "net_banking"
	MethodUPI          Method = "upi"
	MethodWallet       Method = "wallet"
	MethodEMI          Method = "emi"
	MethodBankTransfer Method = "bank_transfer"
)

// maxDiagnosticLen bounds errorMessage and gatewayResponse. Diagnostic fields
// are stored for audit, never interpreted.
const maxDiagnosticLen = 1000

// Record is the canonical payment record. PaymentID is the internal business
// identifier, distinct from any identifier the gateway assigns. Amount is in
// major currency units; minor-unit conversion is owned by the gateway client.
type Record struct {
	PaymentID string
	OrderID   string
	UserID    string
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	Method    Method
	Receipt   string

	Description string

	GatewayOrderID   string
	GatewayPaymentID *string
	GatewaySignature *string

	ErrorMessage    *string
	GatewayResponse *string

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

// NewRecord creates a payment record in pending status with a freshly
// assigned payment id.
func NewRecord(orderID, userID string, amount decimal.Decimal, currency string, method Method) (*Record, error) {
	if orderID == "" {
		return nil, errors.NewValidationError("order_id", "cannot be empty")
	}
	if userID == "" {
		return nil, errors.NewValidationError("user_id", "cannot be empty")
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	now := time.Now()
	return &Record{
		PaymentID: "PAY-" + uuid.New().String(),
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		Method:    method,
		Receipt:   "rcpt_" + uuid.New().String()[:8],
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateAmount checks that an amount is valid for a payment or refund.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.GreaterThan(decimal.Zero) {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	return nil
}

// IsTerminal reports whether the record is in a terminal state. Completed is
// non-terminal with respect to refund.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusFailed ||
		r.Status == StatusCancelled ||
		r.Status == StatusRefunded
}

// HasGatewayPayment reports whether the given gateway payment id matches the
// one recorded on this payment.
func (r *Record) HasGatewayPayment(gatewayPaymentID string) bool {
	return r.GatewayPaymentID != nil && *r.GatewayPaymentID == gatewayPaymentID
}

// Truncate bounds a diagnostic string for storage.
func Truncate(s string) string {
	if len(s) > maxDiagnosticLen {
		return s[:maxDiagnosticLen]
	}
	return s
}

// RecordEvent is an audit entry for a payment record.
type RecordEvent struct {
	ID        uuid.UUID
	PaymentID string
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}
