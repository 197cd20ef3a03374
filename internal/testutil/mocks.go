package testutil

import (
	"context"
	"sync"

	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/outbox"
	"github.com/shopstack/payment-service/internal/domain/payment"
)

// --- Payment Repository Mock ---

// MockRecordRepository is an in-memory implementation of payment.Repository.
// Its CompareAndUpdateStatus honors the same compare-and-swap semantics as
// the real store, so race scenarios can be simulated by mutating stored
// records between calls.
type MockRecordRepository struct {
	mu      sync.Mutex
	records map[string]*payment.Record
	events  map[string][]*payment.RecordEvent

	CreateFunc                 func(ctx context.Context, rec *payment.Record) error
	GetByPaymentIDFunc         func(ctx context.Context, paymentID string) (*payment.Record, error)
	GetByGatewayPaymentIDFunc  func(ctx context.Context, gatewayPaymentID string) (*payment.Record, error)
	GetByGatewayOrderIDFunc    func(ctx context.Context, gatewayOrderID string) (*payment.Record, error)
	CompareAndUpdateStatusFunc func(ctx context.Context, paymentID string, expected, next payment.Status, m payment.StatusMutations) error
	ListFunc                   func(ctx context.Context, filter payment.ListFilter) ([]*payment.Record, error)
	AddEventFunc               func(ctx context.Context, event *payment.RecordEvent) error
}

func NewMockRecordRepository() *MockRecordRepository {
	return &MockRecordRepository{
		records: make(map[string]*payment.Record),
		events:  make(map[string][]*payment.RecordEvent),
	}
}

// AddRecord pre-populates the mock with a record.
func (m *MockRecordRepository) AddRecord(rec *payment.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PaymentID] = rec
}

// Record returns the stored record (test helper, no context needed).
func (m *MockRecordRepository) Record(paymentID string) *payment.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[paymentID]
}

// Events returns the audit events recorded for a payment.
func (m *MockRecordRepository) Events(paymentID string) []*payment.RecordEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[paymentID]
}

func (m *MockRecordRepository) Create(ctx context.Context, rec *payment.Record) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.PaymentID]; exists {
		return domainErrors.ErrDuplicatePaymentID
	}
	m.records[rec.PaymentID] = rec
	return nil
}

func (m *MockRecordRepository) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Record, error) {
	if m.GetByPaymentIDFunc != nil {
		return m.GetByPaymentIDFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[paymentID]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockRecordRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Record, error) {
	if m.GetByGatewayPaymentIDFunc != nil {
		return m.GetByGatewayPaymentIDFunc(ctx, gatewayPaymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.GatewayPaymentID != nil && *rec.GatewayPaymentID == gatewayPaymentID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (m *MockRecordRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Record, error) {
	if m.GetByGatewayOrderIDFunc != nil {
		return m.GetByGatewayOrderIDFunc(ctx, gatewayOrderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.GatewayOrderID == gatewayOrderID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (m *MockRecordRepository) CompareAndUpdateStatus(ctx context.Context, paymentID string, expected, next payment.Status, mut payment.StatusMutations) error {
	if m.CompareAndUpdateStatusFunc != nil {
		return m.CompareAndUpdateStatusFunc(ctx, paymentID, expected, next, mut)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[paymentID]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if rec.Status != expected {
		return domainErrors.ErrConcurrentModification
	}
	rec.Status = next
	if mut.GatewayPaymentID != nil {
		rec.GatewayPaymentID = mut.GatewayPaymentID
	}
	if mut.GatewaySignature != nil {
		rec.GatewaySignature = mut.GatewaySignature
	}
	if mut.ErrorMessage != nil {
		rec.ErrorMessage = mut.ErrorMessage
	}
	if mut.GatewayResponse != nil {
		rec.GatewayResponse = mut.GatewayResponse
	}
	if mut.PaidAt != nil && rec.PaidAt == nil {
		rec.PaidAt = mut.PaidAt
	}
	return nil
}

func (m *MockRecordRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Record, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*payment.Record
	for _, rec := range m.records {
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && rec.UserID != *filter.UserID {
			continue
		}
		if filter.UpdatedBefore != nil && !rec.UpdatedAt.Before(*filter.UpdatedBefore) {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockRecordRepository) AddEvent(ctx context.Context, event *payment.RecordEvent) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.PaymentID] = append(m.events[event.PaymentID], event)
	return nil
}

// --- Outbox Mock ---

// MockOutboxWriter records every inserted entry.
type MockOutboxWriter struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc func(ctx context.Context, entry *outbox.Entry) error
}

func NewMockOutboxWriter() *MockOutboxWriter {
	return &MockOutboxWriter{}
}

func (m *MockOutboxWriter) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns all inserted entries.
func (m *MockOutboxWriter) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.entries...)
}

// EntriesOfType returns inserted entries with the given event type.
func (m *MockOutboxWriter) EntriesOfType(eventType string) []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the function inline without a real transaction.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Cache Mock ---

// MockRecordCache is an in-memory RecordCache.
type MockRecordCache struct {
	mu          sync.Mutex
	records     map[string]*payment.Record
	Invalidated []string
}

func NewMockRecordCache() *MockRecordCache {
	return &MockRecordCache{records: make(map[string]*payment.Record)}
}

func (m *MockRecordCache) Get(ctx context.Context, paymentID string) *payment.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[paymentID]
}

func (m *MockRecordCache) Set(ctx context.Context, rec *payment.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PaymentID] = rec
}

func (m *MockRecordCache) Invalidate(ctx context.Context, paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, paymentID)
	m.Invalidated = append(m.Invalidated, paymentID)
}
