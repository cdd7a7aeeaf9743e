// Package domain cipher.go contains the closed set of cipher identifiers.
package domain

import (
	"fmt"
	"strings"
)

// CipherID names the transform applied to a payload before it is written to
// disk. The string values are the names used by persisted settings.
type CipherID string

const (
	CipherAES256     CipherID = "AES256"
	CipherAEADStream CipherID = "XChaChaPoly"
	CipherRSAOAEP    CipherID = "RSA"
	CipherBase64     CipherID = "Base64"
	// CipherComposite chains compression, AES-CBC and Base64.
	CipherComposite CipherID = "Hollow Knight"
	CipherNone      CipherID = "None"
)

// Ciphers lists every known identifier in settings order.
func Ciphers() []CipherID {
	return []CipherID{CipherAES256, CipherAEADStream, CipherRSAOAEP, CipherBase64, CipherComposite, CipherNone}
}

var cipherAliases = map[string]CipherID{
	"aes256":        CipherAES256,
	"aes-256":       CipherAES256,
	"xchachapoly":   CipherAEADStream,
	"aead-stream":   CipherAEADStream,
	"rsa":           CipherRSAOAEP,
	"rsa-oaep":      CipherRSAOAEP,
	"base64":        CipherBase64,
	"base64only":    CipherBase64,
	"hollow knight": CipherComposite,
	"composite":     CipherComposite,
	"none":          CipherNone,
}

// ParseCipherID maps a settings name or canonical alias (case-insensitive)
// onto a CipherID. Unknown names yield ErrUnsupportedCipher.
func ParseCipherID(s string) (CipherID, error) {
	id, ok := cipherAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCipher, s)
	}
	return id, nil
}

// Valid reports whether id is one of the known identifiers.
func (id CipherID) Valid() bool {
	for _, c := range Ciphers() {
		if c == id {
			return true
		}
	}
	return false
}

// String returns the settings name.
func (id CipherID) String() string { return string(id) }
