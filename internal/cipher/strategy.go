// Package cipher routes payload encryption to a provider chosen by
// domain.CipherID. Each identifier maps to exactly one Strategy variant that
// carries only the key material it needs; Resolve is the single exhaustive
// switch over identifiers.
package cipher

import (
	"fmt"

	"github.com/haukened/livedata/internal/codec"
	"github.com/haukened/livedata/internal/crypto"
	"github.com/haukened/livedata/internal/domain"
)

// KeyMaterial is the union of key inputs callers may supply. Which fields are
// required depends on the cipher and direction; absent fields surface as
// domain.ErrMissingKeyMaterial.
type KeyMaterial struct {
	Key        []byte
	IV         []byte
	PublicKey  []byte
	PrivateKey []byte
}

// Strategy is the closed set of payload transforms. Implementations live in
// this package only.
type Strategy interface {
	ID() domain.CipherID
	// Algorithm names the primitive chain behind the identifier.
	Algorithm() string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	strategy()
}

// Resolve builds the Strategy for id from km. The codec bounds the compression
// stage of the composite transform; nil selects codec.DefaultLimit.
func Resolve(id domain.CipherID, km KeyMaterial, c *codec.Codec) (Strategy, error) {
	if c == nil {
		c = codec.New(codec.DefaultLimit)
	}
	switch id {
	case domain.CipherAES256:
		return AES256{Key: km.Key, IV: km.IV}, nil
	case domain.CipherAEADStream:
		return AEADStream{Key: km.Key}, nil
	case domain.CipherRSAOAEP:
		return RSAOAEP{PublicKey: km.PublicKey, PrivateKey: km.PrivateKey}, nil
	case domain.CipherBase64:
		return Base64Only{}, nil
	case domain.CipherComposite:
		return Composite{Key: km.Key, IV: km.IV, Codec: c}, nil
	case domain.CipherNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedCipher, id)
	}
}

var (
	aesProvider  crypto.SymmetricCipher  = crypto.NewAESCBC()
	aeadProvider crypto.AEADCipher       = crypto.NewXChaCha()
	rsaProvider  crypto.AsymmetricCipher = crypto.NewRSAOAEP()
)

func missing(id domain.CipherID, what string) error {
	return fmt.Errorf("%w: %s requires %s", domain.ErrMissingKeyMaterial, id, what)
}

// AES256 is AES-CBC with a caller-supplied key and IV.
type AES256 struct{ Key, IV []byte }

func (AES256) ID() domain.CipherID { return domain.CipherAES256 }
func (AES256) strategy() {}
func (AES256) Algorithm() string { return aesProvider.GetName() }

func (s AES256) Encrypt(p []byte) ([]byte, error) {
	if len(s.Key) == 0 || len(s.IV) == 0 {
		return nil, missing(s.ID(), "key and iv")
	}
	return aesProvider.Encrypt(s.Key, s.IV, p)
}

func (s AES256) Decrypt(c []byte) ([]byte, error) {
	if len(s.Key) == 0 || len(s.IV) == 0 {
		return nil, missing(s.ID(), "key and iv")
	}
	return aesProvider.Decrypt(s.Key, s.IV, c)
}

// AEADStream is XChaCha20-Poly1305 with an embedded random nonce.
type AEADStream struct{ Key []byte }

func (AEADStream) ID() domain.CipherID { return domain.CipherAEADStream }
func (AEADStream) strategy() {}
func (AEADStream) Algorithm() string { return aeadProvider.GetName() }

func (s AEADStream) Encrypt(p []byte) ([]byte, error) {
	if len(s.Key) == 0 {
		return nil, missing(s.ID(), "key")
	}
	return aeadProvider.Seal(s.Key, p)
}

func (s AEADStream) Decrypt(c []byte) ([]byte, error) {
	if len(s.Key) == 0 {
		return nil, missing(s.ID(), "key")
	}
	return aeadProvider.Open(s.Key, c)
}

// RSAOAEP encrypts to PublicKey and decrypts with PrivateKey.
type RSAOAEP struct{ PublicKey, PrivateKey []byte }

func (RSAOAEP) ID() domain.CipherID { return domain.CipherRSAOAEP }
func (RSAOAEP) strategy() {}
func (RSAOAEP) Algorithm() string { return rsaProvider.GetName() }

func (s RSAOAEP) Encrypt(p []byte) ([]byte, error) {
	if len(s.PublicKey) == 0 {
		return nil, missing(s.ID(), "public key")
	}
	return rsaProvider.Encrypt(s.PublicKey, p)
}

func (s RSAOAEP) Decrypt(c []byte) ([]byte, error) {
	if len(s.PrivateKey) == 0 {
		return nil, missing(s.ID(), "private key")
	}
	return rsaProvider.Decrypt(s.PrivateKey, c)
}

// Base64Only applies the text encoding with no compression or encryption.
type Base64Only struct{}

func (Base64Only) ID() domain.CipherID { return domain.CipherBase64 }
func (Base64Only) strategy() {}
func (Base64Only) Algorithm() string { return "Base64" }
func (Base64Only) Encrypt(p []byte) ([]byte, error) { return codec.Encode(p), nil }
func (Base64Only) Decrypt(c []byte) ([]byte, error) { return codec.Decode(c), nil }

// Composite is compress → AES-CBC → Base64, mirrored on decrypt. Any stage
// failure aborts the whole transform.
type Composite struct {
	Key, IV []byte
	Codec   *codec.Codec
}

func (Composite) ID() domain.CipherID { return domain.CipherComposite }
func (Composite) strategy() {}
func (Composite) Algorithm() string {
	return "DEFLATE+" + aesProvider.GetName() + "+Base64"
}

func (s Composite) Encrypt(p []byte) ([]byte, error) {
	if len(s.Key) == 0 || len(s.IV) == 0 {
		return nil, missing(s.ID(), "key and iv")
	}
	deflated, err := s.Codec.Compress(p)
	if err != nil {
		return nil, err
	}
	ct, err := aesProvider.Encrypt(s.Key, s.IV, deflated)
	if err != nil {
		return nil, err
	}
	return codec.Encode(ct), nil
}

func (s Composite) Decrypt(c []byte) ([]byte, error) {
	if len(s.Key) == 0 || len(s.IV) == 0 {
		return nil, missing(s.ID(), "key and iv")
	}
	plain, err := aesProvider.Decrypt(s.Key, s.IV, codec.Decode(c))
	if err != nil {
		return nil, err
	}
	return s.Codec.Decompress(plain)
}

// None refuses both directions.
type None struct{}

func (None) ID() domain.CipherID { return domain.CipherNone }
func (None) strategy() {}
func (None) Algorithm() string { return "none" }

func (None) Encrypt([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedCipher, domain.CipherNone)
}

func (None) Decrypt([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedCipher, domain.CipherNone)
}
