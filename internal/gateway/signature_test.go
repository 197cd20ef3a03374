package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopstack/payment-service/internal/domain/errors"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewSignatureVerifier_MissingSecret(t *testing.T) {
	_, err := NewSignatureVerifier("", "whsec")
	assert.ErrorIs(t, err, errors.ErrMissingSecret)

	_, err = NewSignatureVerifier("keysec", "")
	assert.ErrorIs(t, err, errors.ErrMissingSecret)
}

func TestVerifyClientSignature(t *testing.T) {
	v, err := NewSignatureVerifier("test_secret", "webhook_secret")
	require.NoError(t, err)

	sig := sign("test_secret", []byte("order_abc|pay_xyz"))

	assert.True(t, v.VerifyClientSignature("order_abc", "pay_xyz", sig))

	// Single-byte mutations to any signed component must fail.
	assert.False(t, v.VerifyClientSignature("order_abd", "pay_xyz", sig))
	assert.False(t, v.VerifyClientSignature("order_abc", "pay_xyy", sig))
	assert.False(t, v.VerifyClientSignature("order_abc", "pay_xyz", sig[:len(sig)-1]+"0"))

	// Wrong key.
	otherSig := sign("other_secret", []byte("order_abc|pay_xyz"))
	assert.False(t, v.VerifyClientSignature("order_abc", "pay_xyz", otherSig))
}

func TestVerifyClientSignature_MalformedInput(t *testing.T) {
	v, err := NewSignatureVerifier("test_secret", "webhook_secret")
	require.NoError(t, err)

	assert.False(t, v.VerifyClientSignature("", "pay_xyz", "deadbeef"))
	assert.False(t, v.VerifyClientSignature("order_abc", "", "deadbeef"))
	assert.False(t, v.VerifyClientSignature("order_abc", "pay_xyz", ""))
	assert.False(t, v.VerifyClientSignature("order_abc", "pay_xyz", "not-hex-not-even-right-length"))
}

func TestVerifyWebhookSignature(t *testing.T) {
	v, err := NewSignatureVerifier("test_secret", "webhook_secret")
	require.NoError(t, err)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_xyz","amount":49900}}}}`)
	sig := sign("webhook_secret", body)

	assert.True(t, v.VerifyWebhookSignature(body, sig))

	// A tampered amount with an unchanged signature header must fail.
	tampered := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_xyz","amount":1}}}}`)
	assert.False(t, v.VerifyWebhookSignature(tampered, sig))

	// The client-callback secret must not verify webhooks.
	assert.False(t, v.VerifyWebhookSignature(body, sign("test_secret", body)))

	assert.False(t, v.VerifyWebhookSignature(nil, sig))
	assert.False(t, v.VerifyWebhookSignature(body, ""))
}

func TestMinorUnits_Truncates(t *testing.T) {
	tests := []struct {
		in  string
		out int64
	}{
		{"499.00", 49900},
		{"499.99", 49999},
		{"0.01", 1},
		{"10.999", 1099}, // truncated, not rounded
		{"1", 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, MinorUnits(decimal.RequireFromString(tt.in)), tt.in)
	}
}
