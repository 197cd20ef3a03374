package payment

import (
	"context"
	"time"
)

// StatusMutations are the fields that may be written together with a status
// transition. Nil fields are left untouched. PaidAt is written at most once;
// a stored paid_at always wins.
type StatusMutations struct {
	GatewayPaymentID *string
	GatewaySignature *string
	ErrorMessage     *string
	GatewayResponse  *string
	PaidAt           *time.Time
}

// ListFilter narrows List results. UpdatedBefore selects records whose last
// update is older than the given instant, used by the reconciliation sweep.
type ListFilter struct {
	Status        *Status
	UserID        *string
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

// Repository is the durable store for payment records.
// CompareAndUpdateStatus is the sole mutation path after creation: it only
// succeeds when the stored status still matches expected, which is what makes
// concurrent callback/webhook races safe.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByPaymentID(ctx context.Context, paymentID string) (*Record, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*Record, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Record, error)
	CompareAndUpdateStatus(ctx context.Context, paymentID string, expected, next Status, m StatusMutations) error
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
	AddEvent(ctx context.Context, event *RecordEvent) error
}
