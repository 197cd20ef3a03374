package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
	domainPayment "github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/gateway"
	"github.com/shopstack/payment-service/internal/testutil"
)

func TestReconcilePayment_CapturedOnGateway_CompletesWithoutRecapture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Capture response was lost: gateway payment id is known but the record
	// is stuck in processing.
	rec := testutil.NewProcessingRecord("499.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		return &gateway.PaymentState{ID: gatewayPaymentID, Status: gateway.PaymentStateCaptured, Captured: true}, nil
	}

	status, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusCompleted, status)

	// The money already moved: resolution must fetch, never capture again.
	assert.Equal(t, 1, f.gateway.Calls("fetch_payment"))
	assert.Equal(t, 0, f.gateway.Calls("capture_payment"))

	assert.Len(t, f.outbox.EntriesOfType("payment.completed"), 1)
}

func TestReconcilePayment_FailedOnGateway(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		return &gateway.PaymentState{
			ID:           gatewayPaymentID,
			Status:       gateway.PaymentStateFailed,
			ErrorMessage: "insufficient funds",
		}, nil
	}

	status, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusFailed, status)

	stored := f.repo.Record(rec.PaymentID)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "insufficient funds", *stored.ErrorMessage)
}

func TestReconcilePayment_StillInFlight_LeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		return &gateway.PaymentState{ID: gatewayPaymentID, Status: gateway.PaymentStateCreated}, nil
	}

	status, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusProcessing, status)
	assert.Equal(t, 0, f.gateway.Calls("capture_payment"))
	assert.Empty(t, f.outbox.Entries())
}

func TestReconcilePayment_AuthorizedUncaptured_CapturesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Auto-capture never landed: the gateway holds an authorization that
	// would eventually be released back to the customer.
	rec := testutil.NewProcessingRecord("499.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		return &gateway.PaymentState{ID: gatewayPaymentID, Status: gateway.PaymentStateAuthorized}, nil
	}

	status, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusCompleted, status)

	assert.Equal(t, 1, f.gateway.Calls("capture_payment"))
	assert.Len(t, f.outbox.EntriesOfType("payment.completed"), 1)

	stored := f.repo.Record(rec.PaymentID)
	assert.Equal(t, domainPayment.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.PaidAt)
}

func TestReconcilePayment_CaptureResponseLost_StaysProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		return &gateway.PaymentState{ID: gatewayPaymentID, Status: gateway.PaymentStateAuthorized}, nil
	}
	f.gateway.CapturePaymentFunc = func(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, currency string) (*gateway.CaptureResult, error) {
		return nil, domainErrors.ErrGatewayUnavailable
	}

	_, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)

	// The capture outcome is unknown; the next sweep's fetch disambiguates.
	assert.Equal(t, 1, f.gateway.Calls("capture_payment"), "capture is never auto-retried")
	assert.Equal(t, domainPayment.StatusProcessing, f.repo.Record(rec.PaymentID).Status)
	assert.Empty(t, f.outbox.Entries())
}

func TestReconcilePayment_NoGatewayPaymentID_ResolvesViaOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(rec)

	f.gateway.FetchOrderFunc = func(ctx context.Context, gatewayOrderID string) (*gateway.Order, error) {
		return &gateway.Order{ID: gatewayOrderID, Status: gateway.OrderStatePaid, AmountPaid: 49900}, nil
	}

	status, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusCompleted, status)
	assert.Equal(t, 1, f.gateway.Calls("fetch_order"))
	assert.Equal(t, 0, f.gateway.Calls("fetch_payment"))
}

func TestReconcilePayment_NonProcessingRecord_NoGatewayCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewCompletedRecord("499.00", "pay_gw_1")
	f.repo.AddRecord(rec)

	status, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusCompleted, status)
	assert.Equal(t, 0, f.gateway.Calls("fetch_payment"))
	assert.Equal(t, 0, f.gateway.Calls("fetch_order"))
}

func TestReconcilePayment_LostRaceToWebhook_Swallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("499.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		// A webhook lands while we hold the fetched state.
		stored := f.repo.Record(rec.PaymentID)
		stored.Status = domainPayment.StatusCompleted
		return &gateway.PaymentState{ID: gatewayPaymentID, Captured: true, Status: gateway.PaymentStateCaptured}, nil
	}

	_, err := f.reconciler.ReconcilePayment(ctx, rec.PaymentID)
	assert.NoError(t, err)
}

func TestSweepStale_ResolvesBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := time.Now().Add(-time.Hour)

	captured := testutil.NewProcessingRecord("100.00")
	captured.GatewayPaymentID = testutil.StrPtr("pay_gw_ok")
	captured.UpdatedAt = stale

	failed := testutil.NewProcessingRecord("200.00")
	failed.GatewayPaymentID = testutil.StrPtr("pay_gw_bad")
	failed.UpdatedAt = stale

	inflight := testutil.NewProcessingRecord("300.00")
	inflight.GatewayPaymentID = testutil.StrPtr("pay_gw_wait")
	inflight.UpdatedAt = stale

	fresh := testutil.NewProcessingRecord("400.00")
	fresh.GatewayPaymentID = testutil.StrPtr("pay_gw_fresh")

	for _, rec := range []*domainPayment.Record{captured, failed, inflight, fresh} {
		f.repo.AddRecord(rec)
	}

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		switch gatewayPaymentID {
		case "pay_gw_ok":
			return &gateway.PaymentState{ID: gatewayPaymentID, Captured: true, Status: gateway.PaymentStateCaptured}, nil
		case "pay_gw_bad":
			return &gateway.PaymentState{ID: gatewayPaymentID, Status: gateway.PaymentStateFailed}, nil
		default:
			return &gateway.PaymentState{ID: gatewayPaymentID, Status: gateway.PaymentStateCreated}, nil
		}
	}

	res, err := f.reconciler.SweepStale(ctx, 30*time.Minute, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Examined, "fresh record is not swept")
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Pending)

	assert.Equal(t, domainPayment.StatusCompleted, f.repo.Record(captured.PaymentID).Status)
	assert.Equal(t, domainPayment.StatusFailed, f.repo.Record(failed.PaymentID).Status)
	assert.Equal(t, domainPayment.StatusProcessing, f.repo.Record(inflight.PaymentID).Status)
	assert.Equal(t, domainPayment.StatusProcessing, f.repo.Record(fresh.PaymentID).Status)
}

func TestSweepStale_GatewayDownAbortsSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := testutil.NewProcessingRecord("100.00")
	rec.GatewayPaymentID = testutil.StrPtr("pay_gw_1")
	rec.UpdatedAt = time.Now().Add(-time.Hour)
	f.repo.AddRecord(rec)

	f.gateway.FetchPaymentFunc = func(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentState, error) {
		return nil, domainErrors.ErrGatewayUnavailable
	}

	_, err := f.reconciler.SweepStale(ctx, 30*time.Minute, 10)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
	assert.Equal(t, domainPayment.StatusProcessing, f.repo.Record(rec.PaymentID).Status)
}
