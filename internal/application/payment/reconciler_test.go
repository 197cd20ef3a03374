package payment_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	paymentApp "github.com/shopstack/payment-service/internal/application/payment"
	"github.com/shopstack/payment-service/internal/gateway"
	"github.com/shopstack/payment-service/internal/testutil"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "webhook_secret"
)

type fixture struct {
	reconciler *paymentApp.Reconciler
	repo       *testutil.MockRecordRepository
	outbox     *testutil.MockOutboxWriter
	gateway    *gateway.MockClient
	cache      *testutil.MockRecordCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := testutil.NewMockRecordRepository()
	ob := testutil.NewMockOutboxWriter()
	gw := gateway.NewMockClient()
	cache := testutil.NewMockRecordCache()

	verifier, err := gateway.NewSignatureVerifier(testKeySecret, testWebhookSecret)
	require.NoError(t, err)

	rc := paymentApp.NewReconciler(
		repo, gw, verifier, ob,
		testutil.NewMockTransactionManager(),
		cache, "INR", zerolog.Nop(),
	)
	return &fixture{reconciler: rc, repo: repo, outbox: ob, gateway: gw, cache: cache}
}

func hmacHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signCallback(gatewayOrderID, gatewayPaymentID string) string {
	return hmacHex(testKeySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

func signWebhook(body []byte) string {
	return hmacHex(testWebhookSecret, body)
}
