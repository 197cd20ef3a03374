package payment

import (
	"github.com/shopstack/payment-service/internal/domain/errors"
)

// Event is an input to the payment state machine.
type Event string

const (
	// EventOrderCreated fires once the gateway order exists.
	EventOrderCreated Event = "order_created"
	// EventCaptureConfirmed fires when a capture is confirmed by a verified
	// callback, a verified webhook, or an authoritative gateway fetch.
	EventCaptureConfirmed Event = "capture_confirmed"
	// EventCaptureFailed fires when the gateway reports the capture failed.
	EventCaptureFailed Event = "capture_failed"
	// EventCancelled fires on a cancellation request before any confirmed
	// capture.
	EventCancelled Event = "cancelled"
	// EventRefundConfirmed fires when the gateway confirms a refund.
	EventRefundConfirmed Event = "refund_confirmed"
)

var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventOrderCreated: StatusProcessing,
	},
	StatusProcessing: {
		EventCaptureConfirmed: StatusCompleted,
		EventCaptureFailed:    StatusFailed,
		EventCancelled:        StatusCancelled,
	},
	StatusCompleted: {
		EventRefundConfirmed: StatusRefunded,
	},
	// Failed, cancelled and refunded are terminal.
	StatusFailed:    {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// NextStatus returns the status a record in current status moves to when the
// event fires. Any (current, event) pair outside the transition table is
// rejected with ErrInvalidStateTransition and must cause no mutation.
func NextStatus(current Status, event Event) (Status, error) {
	allowed, ok := transitions[current]
	if !ok {
		return "", errors.NewDomainError(
			"invalid_transition",
			"unknown payment status "+string(current),
			errors.ErrInvalidStateTransition,
		)
	}
	next, ok := allowed[event]
	if !ok {
		return "", errors.NewDomainError(
			"invalid_transition",
			"event "+string(event)+" not allowed in status "+string(current),
			errors.ErrInvalidStateTransition,
		)
	}
	return next, nil
}

// CanTransition reports whether the event is legal in the current status.
func CanTransition(current Status, event Event) bool {
	_, err := NextStatus(current, event)
	return err == nil
}
