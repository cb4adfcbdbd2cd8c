package webhook_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flowgate/internal/webhook"
)

const secret = "test-app-secret"

func TestVerify(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	good := webhook.SignatureFor(body, secret)
	bare := hex.EncodeToString(webhook.Sign(body, secret))

	tests := []struct {
		name   string
		body   []byte
		header string
		secret string
		want   bool
	}{
		{"prefixed", body, good, secret, true},
		{"bare_hex", body, bare, secret, true},
		{"empty_header", body, "", secret, false},
		{"empty_secret", body, good, "", false},
		{"wrong_secret", body, good, "other", false},
		{"tampered_body", []byte(`{"object":"x"}`), good, secret, false},
		{"not_hex", body, "sha256=zz", secret, false},
		{"truncated", body, good[:20], secret, false},
		{"prefix_only", body, "sha256=", secret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := webhook.Verify(tt.body, tt.header, tt.secret)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyExactBytes(t *testing.T) {
	compact := []byte(`{"a":1}`)
	spaced := []byte(`{"a": 1}`)
	sig := webhook.SignatureFor(compact, secret)

	assert.True(t, webhook.Verify(compact, sig, secret))
	assert.False(t, webhook.Verify(spaced, sig, secret))
}

func TestVerifyOrFail(t *testing.T) {
	body := []byte("payload")
	assert.NoError(t,
		webhook.VerifyOrFail(body, webhook.SignatureFor(body, secret), secret),
	)
	assert.ErrorIs(t,
		webhook.VerifyOrFail(body, "sha256=00", secret),
		webhook.ErrInvalidSignature,
	)
}
