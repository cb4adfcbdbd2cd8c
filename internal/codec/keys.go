package codec

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrNoPEMBlock       = errors.New("no PEM block found")
	ErrPassphraseNeeded = errors.New("encrypted key requires a passphrase")
	ErrNotRSAKey        = errors.New("private key is not RSA")
)

// ParsePrivateKey decodes a PEM-encoded RSA private key in PKCS#1 or
// PKCS#8 form. Legacy encrypted PEM blocks are decrypted with passphrase
func ParsePrivateKey(
	pemData []byte, passphrase string,
) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, ErrNoPEMBlock)
	}

	der := block.Bytes
	//lint:ignore SA1019 the platform tooling still produces legacy PEM
	if x509.IsEncryptedPEMBlock(block) {
		if passphrase == "" {
			return nil, fmt.Errorf("%w: %w",
				ErrInvalidKey, ErrPassphraseNeeded)
		}
		//lint:ignore SA1019 see above
		dec, err := x509.DecryptPEMBlock(block, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		der = dec
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, ErrNotRSAKey)
	}
	return key, nil
}
