package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
)

const paymentColumns = `payment_id, order_id, user_id, amount, currency, status, method,
	        receipt, description, gateway_order_id, gateway_payment_id, gateway_signature,
	        error_message, gateway_response, created_at, updated_at, paid_at`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments
		 (payment_id, order_id, user_id, amount, currency, status, method,
		  receipt, description, gateway_order_id, gateway_payment_id, gateway_signature,
		  error_message, gateway_response, created_at, updated_at, paid_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.PaymentID, p.OrderID, p.UserID, p.Amount.String(), p.Currency, string(p.Status), string(p.Method),
		p.Receipt, p.Description, p.GatewayOrderID, p.GatewayPaymentID, p.GatewaySignature,
		p.ErrorMessage, p.GatewayResponse, p.CreatedAt, p.UpdatedAt, p.PaidAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicatePaymentID
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByPaymentID retrieves a payment by its internal identifier.
func (r *PaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Record, error) {
	return r.scanRecord(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID))
}

// GetByGatewayPaymentID retrieves a payment by the gateway's payment id.
// Webhooks identify payments this way.
func (r *PaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Record, error) {
	return r.scanRecord(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_payment_id = $1`, gatewayPaymentID))
}

// GetByGatewayOrderID retrieves a payment by the gateway's order id. Used when
// a webhook arrives before the client callback assigned a gateway payment id.
func (r *PaymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Record, error) {
	return r.scanRecord(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1`, gatewayOrderID))
}

// CompareAndUpdateStatus transitions a payment from expected to next in a
// single conditional UPDATE. Mutations with nil fields leave the stored value
// untouched, and paid_at is set-once: a stored value always wins. When zero
// rows match, the record is re-read to distinguish a missing payment from a
// lost race.
func (r *PaymentRepository) CompareAndUpdateStatus(ctx context.Context, paymentID string, expected, next payment.Status, m payment.StatusMutations) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		   status = $3,
		   gateway_payment_id = COALESCE($4, gateway_payment_id),
		   gateway_signature  = COALESCE($5, gateway_signature),
		   error_message      = COALESCE($6, error_message),
		   gateway_response   = COALESCE($7, gateway_response),
		   paid_at            = COALESCE(paid_at, $8),
		   updated_at         = NOW()
		 WHERE payment_id = $1 AND status = $2`,
		paymentID, string(expected), string(next),
		m.GatewayPaymentID, m.GatewaySignature, m.ErrorMessage, m.GatewayResponse, m.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByPaymentID(ctx, paymentID); getErr != nil {
			return getErr
		}
		return domainErrors.ErrConcurrentModification
	}
	return nil
}

// List lists payments with optional filters, newest first.
func (r *PaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Record, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.UpdatedBefore != nil {
		query += fmt.Sprintf(" AND updated_at < $%d", argIdx)
		args = append(args, *f.UpdatedBefore)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var records []*payment.Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AddEvent inserts a payment event.
func (r *PaymentRepository) AddEvent(ctx context.Context, event *payment.RecordEvent) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, payment_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		event.ID, event.PaymentID, event.EventType, data,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// GetEvents retrieves events for a payment in insertion order.
func (r *PaymentRepository) GetEvents(ctx context.Context, paymentID string) ([]*payment.RecordEvent, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, payment_id, event_type, event_data, created_at
		 FROM payment_events WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	var events []*payment.RecordEvent
	for rows.Next() {
		e := &payment.RecordEvent{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- scanning helpers ---

// scanRecord scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanRecord(s scanner) (*payment.Record, error) {
	p := &payment.Record{}
	var (
		amountStr string
		status    string
		method    string
	)
	err := s.Scan(
		&p.PaymentID, &p.OrderID, &p.UserID, &amountStr, &p.Currency, &status, &method,
		&p.Receipt, &p.Description, &p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewaySignature,
		&p.ErrorMessage, &p.GatewayResponse, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = amount
	p.Status = payment.Status(status)
	p.Method = payment.Method(method)
	return p, nil
}
