// Package crypto provides the cipher providers behind the dispatcher. Each
// provider wraps one primitive family and reports every failure as
// domain.ErrProviderFailure, so callers cannot tell a wrong key from corrupt
// input at this layer. Key handles built from malformed bytes additionally
// wrap ErrInvalidKey.
package crypto

import (
	"errors"
	"fmt"

	"github.com/haukened/livedata/internal/domain"
)

// ErrInvalidKey marks key bytes that could not be turned into a key handle.
var ErrInvalidKey = errors.New("invalid key format")

// SymmetricCipher encrypts with a key and an externally supplied IV. (Current: AES-CBC)
type SymmetricCipher interface {
	Encrypt(key, iv, plaintext []byte) ([]byte, error)
	Decrypt(key, iv, ciphertext []byte) ([]byte, error)
	GetName() string
}

// AEADCipher encrypts with a key only and embeds its nonce in the output.
// Returns: [nonce || ciphertext || auth_tag]
type AEADCipher interface {
	Seal(key, plaintext []byte) ([]byte, error)
	Open(key, combined []byte) ([]byte, error)
	GetName() string
}

// AsymmetricCipher encrypts with a raw public key and decrypts with a raw private key.
type AsymmetricCipher interface {
	Encrypt(publicKey, plaintext []byte) ([]byte, error)
	Decrypt(privateKey, ciphertext []byte) ([]byte, error)
	GetName() string
}

func failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrProviderFailure, op, err)
}

func keyFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w: %v", domain.ErrProviderFailure, op, ErrInvalidKey, err)
}
