package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha implements XChaCha20-Poly1305. A fresh 24-byte nonce is generated
// per Seal and prefixed to the ciphertext.
type XChaCha struct {
	// Rand is the nonce source; nil means crypto/rand.
	Rand io.Reader
}

func NewXChaCha() *XChaCha { return &XChaCha{} }

func (XChaCha) GetName() string { return "XChaCha20-Poly1305" }

// Seal returns [nonce || ciphertext || tag].
func (x *XChaCha) Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, keyFailure("xchacha key", err)
	}
	src := x.Rand
	if src == nil {
		src = rand.Reader
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(src, nonce); err != nil {
		return nil, failure("xchacha nonce", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts the combined format produced by Seal.
func (x *XChaCha) Open(key, combined []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, keyFailure("xchacha key", err)
	}
	if len(combined) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, failure("xchacha open", fmt.Errorf("combined input too short: %d bytes", len(combined)))
	}
	nonce := combined[:chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, combined[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, failure("xchacha open", err)
	}
	return plain, nil
}
