package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/haukened/livedata/internal/domain"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal("rand:", err)
	}
	return b
}

func TestAESCBCRoundTrip(t *testing.T) {
	a := NewAESCBC()
	iv := randomBytes(t, 16)
	for _, keyLen := range []int{16, 24, 32} {
		key := randomBytes(t, keyLen)
		for _, n := range []int{0, 1, 15, 16, 17, 1000} {
			plain := randomBytes(t, n)
			ct, err := a.Encrypt(key, iv, plain)
			if err != nil {
				t.Fatalf("encrypt(key=%d,n=%d): %v", keyLen, n, err)
			}
			if len(ct)%16 != 0 || len(ct) <= n || len(ct) > n+16 {
				t.Fatalf("unexpected ciphertext length %d for plaintext %d", len(ct), n)
			}
			got, err := a.Decrypt(key, iv, ct)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Fatalf("round trip mismatch key=%d n=%d", keyLen, n)
			}
		}
	}
}

func TestAESCBCFailures(t *testing.T) {
	a := NewAESCBC()
	key := randomBytes(t, 32)
	iv := randomBytes(t, 16)
	ct, err := a.Encrypt(key, iv, []byte("sensitive save data"))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("bad key size is invalid key", func(t *testing.T) {
		_, err := a.Encrypt(randomBytes(t, 7), iv, []byte("x"))
		if !errors.Is(err, ErrInvalidKey) || !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("expected invalid key provider failure, got %v", err)
		}
	})
	t.Run("bad iv size is invalid key", func(t *testing.T) {
		_, err := a.Decrypt(key, iv[:8], ct)
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})
	t.Run("misaligned ciphertext", func(t *testing.T) {
		_, err := a.Decrypt(key, iv, ct[:len(ct)-1])
		if !errors.Is(err, domain.ErrProviderFailure) || errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected plain provider failure, got %v", err)
		}
	})
	t.Run("empty ciphertext", func(t *testing.T) {
		if _, err := a.Decrypt(key, iv, nil); !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("expected provider failure, got %v", err)
		}
	})
}

func TestPKCS7Unpad(t *testing.T) {
	bad := [][]byte{
		bytes.Repeat([]byte{0}, 16),
		append(bytes.Repeat([]byte{1}, 15), 17),
		append(bytes.Repeat([]byte{1}, 14), 3, 2),
	}
	for _, b := range bad {
		if _, err := pkcs7Unpad(b, 16); err == nil {
			t.Fatalf("expected padding error for %x", b)
		}
	}
	got, err := pkcs7Unpad(append([]byte("abc"), bytes.Repeat([]byte{13}, 13)...), 16)
	if err != nil || string(got) != "abc" {
		t.Fatalf("unpad = %q, %v", got, err)
	}
}

func TestXChaChaRoundTripAndTamper(t *testing.T) {
	x := NewXChaCha()
	key := randomBytes(t, 32)
	plain := []byte(`{"geo":1200}`)
	combined, err := x.Seal(key, plain)
	if err != nil {
		t.Fatal("seal:", err)
	}
	if len(combined) != 24+len(plain)+16 {
		t.Fatalf("unexpected combined length %d", len(combined))
	}

	t.Run("normal open succeeds", func(t *testing.T) {
		got, err := x.Open(key, combined)
		if err != nil || !bytes.Equal(got, plain) {
			t.Fatalf("open = %q, %v", got, err)
		}
	})
	t.Run("tampered tag fails", func(t *testing.T) {
		tampered := bytes.Clone(combined)
		tampered[len(tampered)-1] ^= 0xFF
		if _, err := x.Open(key, tampered); !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("expected provider failure, got %v", err)
		}
	})
	t.Run("wrong key fails", func(t *testing.T) {
		if _, err := x.Open(randomBytes(t, 32), combined); !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("expected provider failure, got %v", err)
		}
	})
	t.Run("short input fails", func(t *testing.T) {
		if _, err := x.Open(key, combined[:10]); !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("expected provider failure, got %v", err)
		}
	})
	t.Run("short key is invalid key", func(t *testing.T) {
		if _, err := x.Seal(randomBytes(t, 16), plain); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})
	t.Run("nonces differ per seal", func(t *testing.T) {
		again, err := x.Seal(key, plain)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(again[:24], combined[:24]) {
			t.Fatalf("nonce reused")
		}
	})
}

func generateRSA(t *testing.T) (*rsa.PrivateKey, []byte, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal("generate:", err)
	}
	pubDER := x509.MarshalPKCS1PublicKey(&priv.PublicKey)
	privDER := x509.MarshalPKCS1PrivateKey(priv)
	return priv, pubDER, privDER
}

func TestRSAOAEPRoundTrip(t *testing.T) {
	r := NewRSAOAEP()
	priv, pubDER, privDER := generateRSA(t)
	plain := []byte("small compressed payload")

	ct, err := r.Encrypt(pubDER, plain)
	if err != nil {
		t.Fatal("encrypt:", err)
	}
	got, err := r.Decrypt(privDER, ct)
	if err != nil || !bytes.Equal(got, plain) {
		t.Fatalf("decrypt = %q, %v", got, err)
	}

	t.Run("pkix and pkcs8 pem forms", func(t *testing.T) {
		pkix, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			t.Fatal(err)
		}
		pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})
		privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})
		ct, err := r.Encrypt(pubPEM, plain)
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.Decrypt(privPEM, ct)
		if err != nil || !bytes.Equal(got, plain) {
			t.Fatalf("decrypt = %q, %v", got, err)
		}
	})
}

func TestRSAOAEPFailures(t *testing.T) {
	r := NewRSAOAEP()
	_, pubDER, privDER := generateRSA(t)

	t.Run("garbage key bytes are invalid key", func(t *testing.T) {
		_, err := r.Encrypt([]byte("not a key"), []byte("x"))
		if !errors.Is(err, ErrInvalidKey) || !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("expected invalid key, got %v", err)
		}
		_, err = r.Decrypt([]byte("not a key"), []byte("x"))
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected invalid key, got %v", err)
		}
	})
	t.Run("valid key wrong operation input", func(t *testing.T) {
		_, err := r.Decrypt(privDER, []byte("not a ciphertext"))
		if !errors.Is(err, domain.ErrProviderFailure) || errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected plain provider failure, got %v", err)
		}
	})
	t.Run("message too long", func(t *testing.T) {
		_, err := r.Encrypt(pubDER, make([]byte, 512))
		if !errors.Is(err, domain.ErrProviderFailure) || errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected plain provider failure, got %v", err)
		}
	})
}
