package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	payload := map[string]any{
		"payment_id": "PAY-123",
		"order_id":   "order_456",
		"amount":     "499.00",
		"currency":   "INR",
	}

	entry := NewEntry("payment", "PAY-123", "payment.completed", payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "payment", entry.AggregateType)
	assert.Equal(t, "PAY-123", entry.AggregateID)
	assert.Equal(t, "payment.completed", entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewEntry_EmptyPayload(t *testing.T) {
	entry := NewEntry("payment", "PAY-456", "payment.cancelled", nil)

	require.NotNil(t, entry)
	assert.Nil(t, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
}

func TestNewEntry_DifferentEventTypes(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
	}{
		{"payment created", "payment.created"},
		{"payment completed", "payment.completed"},
		{"payment failed", "payment.failed"},
		{"payment refunded", "payment.refunded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry("payment", "PAY-789", tt.eventType, nil)
			assert.Equal(t, "payment", entry.AggregateType)
			assert.Equal(t, tt.eventType, entry.EventType)
		})
	}
}

func TestStatus_Constants(t *testing.T) {
	assert.Equal(t, Status("pending"), StatusPending)
	assert.Equal(t, Status("published"), StatusPublished)
	assert.Equal(t, Status("failed"), StatusFailed)
}

func TestEntry_UniqueIDs(t *testing.T) {
	entry1 := NewEntry("payment", "PAY-123", "payment.completed", nil)
	entry2 := NewEntry("payment", "PAY-123", "payment.completed", nil)

	// Each entry should have a unique ID even with same aggregate
	assert.NotEqual(t, entry1.ID, entry2.ID)
	assert.Equal(t, entry1.AggregateID, entry2.AggregateID)
}
