package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// Codec decrypts data-exchange requests and encrypts their responses
	// using the platform's hybrid RSA-OAEP and AES-128-GCM scheme
	Codec struct {
		key *rsa.PrivateKey
	}

	// Envelope holds the decoded binary fields of an EncryptedRequest
	Envelope struct {
		EncryptedKey  []byte
		EncryptedBody []byte
		IV            []byte
	}

	// Decrypted is a decrypted request along with the material needed to
	// encrypt its response. Key must never be logged or persisted
	Decrypted struct {
		Request *api.FlowRequest
		Key     []byte
		IV      []byte
	}
)

const (
	// KeySize is the length of the AES-128 session key
	KeySize = 16

	// TagSize is the length of the GCM authentication tag appended to
	// every ciphertext
	TagSize = 16
)

var (
	ErrKeyDecryption  = errors.New("failed to decrypt symmetric key")
	ErrDecryption     = errors.New("failed to decrypt request")
	ErrEncryption     = errors.New("failed to encrypt response")
	ErrInvalidKey     = errors.New("invalid private key")
	ErrEnvelopeField  = errors.New("envelope field missing")
	ErrEnvelopeBase64 = errors.New("envelope field not base64")
	ErrBodyTooShort   = errors.New("encrypted body shorter than tag")
)

// New creates a Codec from an RSA private key
func New(key *rsa.PrivateKey) *Codec {
	return &Codec{key: key}
}

// NewFromPEM creates a Codec from a PKCS#1 or PKCS#8 PEM-encoded private
// key, decrypting it with passphrase when the block is encrypted
func NewFromPEM(pemData, passphrase string) (*Codec, error) {
	key, err := ParsePrivateKey([]byte(pemData), passphrase)
	if err != nil {
		return nil, err
	}
	return New(key), nil
}

// ParseEnvelope decodes the base64 fields of an encrypted request. Errors
// are classified as validation errors
func ParseEnvelope(req *api.EncryptedRequest) (*Envelope, error) {
	env := &Envelope{}
	fields := []struct {
		name  string
		value string
		dst   *[]byte
	}{
		{"encrypted_aes_key", req.EncryptedAESKey, &env.EncryptedKey},
		{"encrypted_flow_data", req.EncryptedFlowData, &env.EncryptedBody},
		{"initial_vector", req.InitialVector, &env.IV},
	}

	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			return nil, fmt.Errorf("%w: %w: %s",
				api.ErrValidation, ErrEnvelopeField, f.name)
		}
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil || len(b) == 0 {
			return nil, fmt.Errorf("%w: %w: %s",
				api.ErrValidation, ErrEnvelopeBase64, f.name)
		}
		*f.dst = b
	}

	if len(env.EncryptedBody) <= TagSize {
		return nil, fmt.Errorf("%w: %w", api.ErrValidation, ErrBodyTooShort)
	}
	return env, nil
}

// DecryptKey recovers the AES session key with RSA-OAEP using SHA-256 for
// both the hash and MGF1
func (c *Codec) DecryptKey(encryptedKey []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(
		sha256.New(), rand.Reader, c.key, encryptedKey, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDecryption, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: unexpected key length %d",
			ErrKeyDecryption, len(key))
	}
	return key, nil
}

// DecryptRequest unwraps the session key and opens the request body using
// the initial vector exactly as received
func (c *Codec) DecryptRequest(env *Envelope) (*Decrypted, error) {
	key, err := c.DecryptKey(env.EncryptedKey)
	if err != nil {
		return nil, err
	}

	if len(env.EncryptedBody) <= TagSize {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, ErrBodyTooShort)
	}

	aead, err := newGCM(key, len(env.IV))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	plain, err := aead.Open(nil, env.IV, env.EncryptedBody, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	var req api.FlowRequest
	if err := json.Unmarshal(plain, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	return &Decrypted{
		Request: &req,
		Key:     key,
		IV:      env.IV,
	}, nil
}

// EncryptResponse serializes payload and seals it under the session key
// with the flipped initial vector, returning the ciphertext and tag as a
// single standard base64 string
func (c *Codec) EncryptResponse(
	payload any, key, iv []byte,
) (string, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}

	aead, err := newGCM(key, len(iv))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}

	sealed := aead.Seal(nil, FlipIV(iv), plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns the bitwise complement of every byte of iv. It is applied
// to responses only, never to requests
func FlipIV(iv []byte) []byte {
	res := make([]byte, len(iv))
	for i, b := range iv {
		res[i] = ^b
	}
	return res
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length %d", len(key))
	}
	if nonceSize == 0 {
		return nil, errors.New("empty initial vector")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}
