package helpers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowgate/internal/codec"
	"github.com/kode4food/flowgate/internal/config"
	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// Platform plays the messaging platform's side of the data-exchange
	// protocol against a public key
	Platform struct {
		t   *testing.T
		pub *rsa.PublicKey
	}

	// Sealed is an encrypted request together with the session material
	// the platform keeps to open the response
	Sealed struct {
		Request *api.EncryptedRequest
		Key     []byte
		IV      []byte
	}
)

const testKeyBits = 2048

var (
	testKey   *rsa.PrivateKey
	testKeyMu sync.Mutex
)

// NewTestConfig creates a default configuration with debug logging enabled
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.AppSecret = "test-app-secret"
	cfg.VerifyToken = "test-verify-token"
	return cfg
}

// TestKey returns a process-wide RSA key so that tests don't pay for key
// generation repeatedly
func TestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyMu.Lock()
	defer testKeyMu.Unlock()
	if testKey == nil {
		key, err := rsa.GenerateKey(rand.Reader, testKeyBits)
		require.NoError(t, err)
		testKey = key
	}
	return testKey
}

// PKCS1PEM encodes key as a PKCS#1 PEM block
func PKCS1PEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// PKCS8PEM encodes key as a PKCS#8 PEM block
func PKCS8PEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}))
}

// NewTestCodec returns a codec for TestKey and the platform that talks to it
func NewTestCodec(t *testing.T) (*codec.Codec, *Platform) {
	t.Helper()
	key := TestKey(t)
	return codec.New(key), NewPlatform(t, &key.PublicKey)
}

// NewPlatform creates a platform simulator for the given public key
func NewPlatform(t *testing.T, pub *rsa.PublicKey) *Platform {
	return &Platform{t: t, pub: pub}
}

// Seal encrypts payload the way the platform does: a fresh AES-128 key
// wrapped with RSA-OAEP, and the body sealed with AES-GCM under a random
// initial vector of ivSize bytes
func (p *Platform) Seal(payload any, ivSize int) *Sealed {
	p.t.Helper()

	key := make([]byte, codec.KeySize)
	_, err := rand.Read(key)
	require.NoError(p.t, err)

	iv := make([]byte, ivSize)
	_, err = rand.Read(iv)
	require.NoError(p.t, err)

	return p.SealWith(payload, key, iv)
}

// SealWith encrypts payload using the provided session key and vector
func (p *Platform) SealWith(payload any, key, iv []byte) *Sealed {
	p.t.Helper()

	wrapped, err := rsa.EncryptOAEP(
		sha256.New(), rand.Reader, p.pub, key, nil,
	)
	require.NoError(p.t, err)

	plain, err := json.Marshal(payload)
	require.NoError(p.t, err)

	aead := newGCM(p.t, key, len(iv))
	body := aead.Seal(nil, iv, plain, nil)

	enc := base64.StdEncoding
	return &Sealed{
		Request: &api.EncryptedRequest{
			EncryptedAESKey:   enc.EncodeToString(wrapped),
			EncryptedFlowData: enc.EncodeToString(body),
			InitialVector:     enc.EncodeToString(iv),
		},
		Key: key,
		IV:  iv,
	}
}

// Open decrypts a base64 response body with the flipped initial vector and
// decodes it into a FlowResponse
func (s *Sealed) Open(t *testing.T, body string) *api.FlowResponse {
	t.Helper()

	raw, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)

	aead := newGCM(t, s.Key, len(s.IV))
	plain, err := aead.Open(nil, codec.FlipIV(s.IV), raw, nil)
	require.NoError(t, err)

	var res api.FlowResponse
	require.NoError(t, json.Unmarshal(plain, &res))
	return &res
}

func newGCM(t *testing.T, key []byte, nonceSize int) cipher.AEAD {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	require.NoError(t, err)
	return aead
}
