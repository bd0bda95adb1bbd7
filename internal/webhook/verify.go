package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the GitHub webhook signature header.
const SignatureHeader = "X-Hub-Signature-256"

// SignBody computes the signature GitHub would send for body, in header
// form. Used by tests and the local delivery tool.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" HMAC of the raw body against the
// shared secret, in constant time.
func VerifySignature(secret string, body []byte, signatureHeader string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		return false
	}
	got, err := hex.DecodeString(sig[len("sha256="):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
