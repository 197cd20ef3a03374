package controller

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	"github.com/shopstack/payment-service/internal/gateway"
	"github.com/shopstack/payment-service/internal/infrastructure/observability"
	"github.com/shopstack/payment-service/internal/testutil"
)

type handlerFixture struct {
	handler *PaymentController
	repo    *testutil.MockRecordRepository
	gateway *gateway.MockClient
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	repo := testutil.NewMockRecordRepository()
	gw := gateway.NewMockClient()

	verifier, err := gateway.NewSignatureVerifier("key_secret", "webhook_secret")
	require.NoError(t, err)

	reconciler := paymentApp.NewReconciler(
		repo, gw, verifier,
		testutil.NewMockOutboxWriter(),
		testutil.NewMockTransactionManager(),
		testutil.NewMockRecordCache(),
		"INR", zerolog.Nop(),
	)

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return &handlerFixture{
		handler: NewPaymentController(reconciler, metrics),
		repo:    repo,
		gateway: gw,
	}
}

// routed mounts the handlers behind a chi router so URL params resolve.
func (f *handlerFixture) routed() *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/payments", f.handler.InitiatePayment)
	r.Get("/api/v1/payments", f.handler.ListPayments)
	r.Get("/api/v1/payments/{paymentId}", f.handler.GetPayment)
	r.Post("/api/v1/payments/{paymentId}/verify", f.handler.VerifyPayment)
	r.Post("/api/v1/payments/{paymentId}/refund", f.handler.RefundPayment)
	r.Post("/api/v1/payments/{paymentId}/cancel", f.handler.CancelPayment)
	r.Post("/api/v1/payments/webhook", f.handler.Webhook)
	return r
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte("webhook_secret"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPaymentController_InitiatePayment(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.routed(), "/api/v1/payments", map[string]any{
		"order_id": "ORD-1001",
		"user_id":  "user-1",
		"amount":   499.00,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.PaymentID)
	assert.Equal(t, "ORD-1001", resp.OrderID)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "INR", resp.Currency)
	assert.NotEmpty(t, resp.GatewayOrderID)
}

func TestPaymentController_InitiatePayment_MissingFields(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.routed(), "/api/v1/payments", map[string]any{
		"amount": 499.00,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
	assert.Equal(t, 0, f.gateway.Calls("create_order"))
}

func TestPaymentController_GetPayment_NotFound(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/PAY-missing", nil)
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Code)
}

func TestPaymentController_GetPayment(t *testing.T) {
	f := newHandlerFixture(t)

	stored := testutil.NewCompletedRecord("499.00", "pay_gw_1")
	f.repo.AddRecord(stored)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+stored.PaymentID, nil)
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, stored.PaymentID, resp.PaymentID)
	assert.Equal(t, "completed", resp.Status)

	// Signatures and raw gateway responses never leave the service.
	assert.NotContains(t, rec.Body.String(), "gateway_signature")
	assert.NotContains(t, rec.Body.String(), "gateway_response")
}

func TestPaymentController_VerifyPayment_BadSignature(t *testing.T) {
	f := newHandlerFixture(t)

	stored := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(stored)

	rec := postJSON(t, f.routed(), "/api/v1/payments/"+stored.PaymentID+"/verify", map[string]any{
		"gateway_payment_id": "pay_gw_1",
		"signature":          "deadbeef",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "signature_mismatch", resp.Code)
}

func TestPaymentController_Webhook_UnknownPayment(t *testing.T) {
	f := newHandlerFixture(t)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_unknown","order_id":"order_unknown","status":"captured"}}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signWebhookBody(body))
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	// Unmatched deliveries are acknowledged so the gateway stops retrying.
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, paymentApp.WebhookUnmatched, resp.Outcome)
}

func TestPaymentController_Webhook_BadSignature(t *testing.T) {
	f := newHandlerFixture(t)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentController_RefundPayment_EmptyBodyMeansFullRefund(t *testing.T) {
	f := newHandlerFixture(t)

	stored := testutil.NewCompletedRecord("499.00", "pay_gw_1")
	f.repo.AddRecord(stored)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+stored.PaymentID+"/refund", nil)
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "refunded", resp.Status)
	assert.Equal(t, 1, f.gateway.Calls("create_refund"))
}

func TestPaymentController_RefundPayment_InvalidState(t *testing.T) {
	f := newHandlerFixture(t)

	stored := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(stored)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+stored.PaymentID+"/refund", nil)
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_state_transition", resp.Code)
}

func TestPaymentController_CancelPayment(t *testing.T) {
	f := newHandlerFixture(t)

	stored := testutil.NewProcessingRecord("499.00")
	f.repo.AddRecord(stored)

	rec := postJSON(t, f.routed(), "/api/v1/payments/"+stored.PaymentID+"/cancel", map[string]any{
		"reason": "customer abandoned checkout",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
}

func TestPaymentController_ListPayments_Filters(t *testing.T) {
	f := newHandlerFixture(t)

	f.repo.AddRecord(testutil.NewProcessingRecord("100.00"))
	f.repo.AddRecord(testutil.NewCompletedRecord("200.00", "pay_gw_1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments?status=completed", nil)
	rec := httptest.NewRecorder()
	f.routed().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "completed", resp[0].Status)
}
