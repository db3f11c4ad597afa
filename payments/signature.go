package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrWebhookSecretMissing = errors.New("webhook secret is not configured")

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts the bare hex digest or a "sha256=" prefixed one.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrWebhookSecretMissing
	}
	sig := strings.TrimSpace(signature)
	sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")
	if sig == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}
