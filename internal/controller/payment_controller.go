package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	domainErrors "github.com/shopstack/payment-service/internal/domain/errors"
	"github.com/shopstack/payment-service/internal/domain/payment"
	"github.com/shopstack/payment-service/internal/infrastructure/observability"
)

// maxWebhookBody bounds webhook payloads; gateway events are small.
const maxWebhookBody = 1 << 20

// webhookSignatureHeader carries the gateway's HMAC over the raw body.
const webhookSignatureHeader = "X-Razorpay-Signature"

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	reconciler *paymentApp.Reconciler
	metrics    *observability.Metrics
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(reconciler *paymentApp.Reconciler, metrics *observability.Metrics) *PaymentController {
	return &PaymentController{reconciler: reconciler, metrics: metrics}
}

// InitiatePayment handles POST /api/v1/payments
func (h *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.reconciler.InitiatePayment(r.Context(), paymentApp.InitiateRequest{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      payment.Method(req.Method),
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.PaymentsTotal.WithLabelValues(string(rec.Status)).Inc()
	writeJSON(w, http.StatusCreated, FromRecord(rec))
}

// VerifyPayment handles POST /api/v1/payments/{paymentId}/verify
func (h *PaymentController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	var req VerifyPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.reconciler.ConfirmPayment(r.Context(), paymentApp.ConfirmRequest{
		PaymentID:        paymentID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrSignatureMismatch) {
			h.metrics.SignatureFailures.WithLabelValues("callback").Inc()
		}
		writeError(w, err)
		return
	}

	h.metrics.PaymentsTotal.WithLabelValues(string(rec.Status)).Inc()
	writeJSON(w, http.StatusOK, FromRecord(rec))
}

// Webhook handles POST /api/v1/payments/webhook. The body must be consumed
// raw: signature verification runs over the exact bytes the gateway sent.
func (h *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "invalid_input"})
		return
	}

	res, err := h.reconciler.HandleWebhook(r.Context(), body, r.Header.Get(webhookSignatureHeader))
	if err != nil {
		if errors.Is(err, domainErrors.ErrSignatureMismatch) {
			h.metrics.SignatureFailures.WithLabelValues("webhook").Inc()
		}
		writeError(w, err)
		return
	}

	h.metrics.WebhookEvents.WithLabelValues(res.Event, res.Outcome).Inc()
	writeJSON(w, http.StatusOK, WebhookResponse{Status: "ok", Outcome: res.Outcome})
}

// RefundPayment handles POST /api/v1/payments/{paymentId}/refund
func (h *PaymentController) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	// Body is optional: an empty body is a full refund.
	var req RefundPaymentRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	rec, err := h.reconciler.RefundPayment(r.Context(), paymentApp.RefundRequest{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.PaymentsTotal.WithLabelValues(string(rec.Status)).Inc()
	writeJSON(w, http.StatusOK, FromRecord(rec))
}

// CancelPayment handles POST /api/v1/payments/{paymentId}/cancel
func (h *PaymentController) CancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	var req CancelPaymentRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	rec, err := h.reconciler.CancelPayment(r.Context(), paymentID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.PaymentsTotal.WithLabelValues(string(rec.Status)).Inc()
	writeJSON(w, http.StatusOK, FromRecord(rec))
}

// GetPayment handles GET /api/v1/payments/{paymentId}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reconciler.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromRecord(rec))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := payment.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("user_id"); s != "" {
		filter.UserID = &s
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.reconciler.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, FromRecord(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}
