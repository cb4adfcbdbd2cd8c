package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC of a webhook body
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verify reports whether header holds the HMAC-SHA256 of body under secret.
// The "sha256=" prefix is optional. A missing or malformed header or an
// empty secret never verifies
func Verify(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, Sign(body, secret))
}

// VerifyOrFail is Verify returning ErrInvalidSignature on mismatch
func VerifyOrFail(body []byte, header, secret string) error {
	if !Verify(body, header, secret) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body under secret
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureFor formats the header value the platform sends for body
func SignatureFor(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(Sign(body, secret))
}
