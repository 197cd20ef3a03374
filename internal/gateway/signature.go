package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/shopstack/payment-service/internal/domain/errors"
)

// SignatureVerifier checks HMAC-SHA256 authenticity proofs attached to client
// payment confirmations and webhook deliveries. It is stateless and safe for
// concurrent use.
type SignatureVerifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewSignatureVerifier builds a verifier. Missing secrets are a configuration
// error; verification itself never fails with an error, only with false.
func NewSignatureVerifier(keySecret, webhookSecret string) (*SignatureVerifier, error) {
	if keySecret == "" || webhookSecret == "" {
		return nil, errors.ErrMissingSecret
	}
	return &SignatureVerifier{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}, nil
}

// VerifyClientSignature checks the signature a client forwards after
// completing checkout. The signed payload is "<gatewayOrderID>|<gatewayPaymentID>",
// keyed with the API key secret. Malformed input yields false, never an error.
func (v *SignatureVerifier) VerifyClientSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	payload := gatewayOrderID + "|" + gatewayPaymentID
	return verify(v.keySecret, []byte(payload), signature)
}

// VerifyWebhookSignature checks the signature header of a webhook delivery
// against the exact raw body bytes. The body must be the unparsed request
// body: re-serializing a parsed payload would sign different bytes and defeat
// the check.
func (v *SignatureVerifier) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if len(rawBody) == 0 || signatureHeader == "" {
		return false
	}
	return verify(v.webhookSecret, rawBody, signatureHeader)
}

func verify(secret, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time compare. Length check first is fine: length is not
	// secret, the digest value is.
	if len(signature) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
