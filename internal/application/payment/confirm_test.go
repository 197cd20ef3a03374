package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
	domainPayment "github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/testutil"
)

func TestConfirmPayment_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	got, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_1"),
	})
	require.NoError(t, err)

	assert.Equal(t, domainPayment.StatusCompleted, got.Status)

	stored := f.repo.Record(rec.PaymentID)
	assert.Equal(t, domainPayment.StatusCompleted, stored.Status)
	require.NotNil(t, stored.GatewayPaymentID)
	assert.Equal(t, "pay_gw_1", *stored.GatewayPaymentID)
	assert.NotNil(t, stored.PaidAt)

	require.Len(t, f.outbox.EntriesOfType("payment.completed"), 1)
}

func TestConfirmPayment_EventPayloadCarriesFullContract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	_, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_1"),
	})
	require.NoError(t, err)

	entries := f.outbox.EntriesOfType("payment.completed")
	require.Len(t, entries, 1)
	payload := entries[0].Payload

	assert.Equal(t, rec.PaymentID, payload["payment_id"])
	assert.Equal(t, rec.OrderID, payload["order_id"])
	assert.Equal(t, rec.UserID, payload["user_id"])
	assert.Equal(t, rec.Amount.String(), payload["amount"])
	assert.Equal(t, rec.Currency, payload["currency"])
	assert.Equal(t, string(domainPayment.StatusCompleted), payload["status"])
	assert.NotEmpty(t, payload["timestamp"])
}

func TestConfirmPayment_InvalidSignature_NoMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	_, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        "deadbeef",
	})
	assert.ErrorIs(t, err, domainErrors.ErrSignatureMismatch)

	// A rejected signature must leave the record untouched.
	stored := f.repo.Record(rec.PaymentID)
	assert.Equal(t, domainPayment.StatusProcessing, stored.Status)
	assert.Nil(t, stored.GatewayPaymentID)
	assert.Empty(t, f.outbox.Entries())
}

func TestConfirmPayment_SignatureOverDifferentPaymentID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	// Valid signature, but for a different gateway payment id than claimed.
	_, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_other",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_1"),
	})
	assert.ErrorIs(t, err, domainErrors.ErrSignatureMismatch)
}

func TestConfirmPayment_DuplicateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	req := paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_1"),
	}

	first, err := f.reconciler.ConfirmPayment(ctx, req)
	require.NoError(t, err)
	second, err := f.reconciler.ConfirmPayment(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, domainPayment.StatusCompleted, first.Status)
	assert.Equal(t, domainPayment.StatusCompleted, second.Status)

	// Exactly one completed event despite two confirmations.
	assert.Len(t, f.outbox.EntriesOfType("payment.completed"), 1)
}

func TestConfirmPayment_CompletedWithDifferentGatewayPayment_Conflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewCompletedRecord("499.00", "pay_gw_1")
	f.repo.AddRecord(rec)

	_, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_2",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_2"),
	})
	assert.ErrorIs(t, err, domainErrors.ErrPaymentConflict)
}

func TestConfirmPayment_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        "PAY-missing",
		GatewayPaymentID: "pay_gw_1",
		Signature:        "sig",
	})
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestConfirmPayment_InvalidStateForConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	rec.Status = domainPayment.StatusCancelled
	f.repo.AddRecord(rec)

	_, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_1"),
	})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestConfirmPayment_RaceWithWebhook_SameGatewayPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	// Simulate a webhook completing the payment between the read and the
	// conditional update.
	raced := false
	f.repo.CompareAndUpdateStatusFunc = func(ctx context.Context, paymentID string, expected, next domainPayment.Status, m domainPayment.StatusMutations) error {
		if !raced {
			raced = true
			stored := f.repo.Record(paymentID)
			stored.Status = domainPayment.StatusCompleted
			stored.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
			return domainErrors.ErrConcurrentModification
		}
		return nil
	}

	got, err := f.reconciler.ConfirmPayment(ctx, paymentApp.ConfirmRequest{
		PaymentID:        rec.PaymentID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        signCallback(rec.GatewayOrderID, "pay_gw_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusCompleted, got.Status)
}
