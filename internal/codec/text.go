package codec

import (
	"unicode/utf8"

	"github.com/haukened/livedata/internal/domain"
)

// EncodeText compresses s and Base64-encodes the result.
func (c *Codec) EncodeText(s string) ([]byte, error) {
	deflated, err := c.Compress([]byte(s))
	if err != nil {
		return nil, err
	}
	return Encode(deflated), nil
}

// DecodeText reverses EncodeText. Decompression failures wrap
// domain.ErrDecompression and non UTF-8 output yields domain.ErrInvalidEncoding.
func (c *Codec) DecodeText(data []byte) (string, error) {
	inflated, err := c.Decompress(Decode(data))
	if err != nil {
		return "", err
	}
	return ToText(inflated)
}

// ToText converts b into a string, rejecting invalid UTF-8.
func ToText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", domain.ErrInvalidEncoding
	}
	return string(b), nil
}

// EncodeText is Codec.EncodeText with DefaultLimit.
func EncodeText(s string) ([]byte, error) { return std.EncodeText(s) }

// DecodeText is Codec.DecodeText with DefaultLimit.
func DecodeText(data []byte) (string, error) { return std.DecodeText(data) }
