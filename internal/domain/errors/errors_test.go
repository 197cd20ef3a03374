package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "gateway_error",
				Message: "order creation failed",
				Err:     errors.New("connection refused"),
			},
			expected: "order creation failed: connection refused",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot refund payment in current state",
				Err:     nil,
			},
			expected: "cannot refund payment in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	domainErr := NewDomainError("gateway_rejected", "capture rejected", ErrGatewayRejected)

	assert.True(t, errors.Is(domainErr, ErrGatewayRejected))
	assert.Equal(t, ErrGatewayRejected, domainErr.Unwrap())
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("amount", "must be greater than 0")

	assert.Equal(t, "validation failed for field amount: must be greater than 0", err.Error())
}
