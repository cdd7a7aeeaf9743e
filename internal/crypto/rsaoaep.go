package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// RSAOAEP implements RSA-OAEP with SHA-256. Keys arrive as raw bytes: DER
// (PKCS#1 or PKIX public, PKCS#1 or PKCS#8 private), optionally PEM-wrapped.
type RSAOAEP struct{}

func NewRSAOAEP() *RSAOAEP { return &RSAOAEP{} }

func (RSAOAEP) GetName() string { return "RSA-OAEP-SHA256" }

func (r *RSAOAEP) Encrypt(publicKey, plaintext []byte) ([]byte, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, keyFailure("rsa public key", err)
	}
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, failure("rsa encrypt", err)
	}
	return out, nil
}

func (r *RSAOAEP) Decrypt(privateKey, ciphertext []byte) ([]byte, error) {
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, keyFailure("rsa private key", err)
	}
	out, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, failure("rsa decrypt", err)
	}
	return out, nil
}

// ParsePublicKey builds an RSA public key handle from raw key bytes.
func ParsePublicKey(raw []byte) (*rsa.PublicKey, error) {
	der := unwrapPEM(raw)
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub, nil
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}

// ParsePrivateKey builds an RSA private key handle from raw key bytes.
func ParsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	der := unwrapPEM(raw)
	if priv, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return priv, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return priv, nil
}

func unwrapPEM(raw []byte) []byte {
	if block, _ := pem.Decode(raw); block != nil {
		return block.Bytes
	}
	return raw
}
