package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// AESCBC implements AES in CBC mode with PKCS#7 padding. The key may be
// 16, 24 or 32 bytes; the IV must be one block.
type AESCBC struct{}

func NewAESCBC() *AESCBC { return &AESCBC{} }

func (AESCBC) GetName() string { return "AES-CBC-PKCS7" }

// Encrypt pads plaintext to a whole number of blocks and encrypts it. The
// output is always between 1 and aes.BlockSize bytes longer than plaintext.
func (a *AESCBC) Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt. Misaligned input and bad padding both fail.
func (a *AESCBC) Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, failure("aes-cbc decrypt", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext)))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return nil, failure("aes-cbc decrypt", err)
	}
	return plain, nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, keyFailure("aes key", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, keyFailure("aes iv", fmt.Errorf("expected %d bytes, got %d", aes.BlockSize, len(iv)))
	}
	return block, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty input")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
