// Package codec implements the text codec used for payloads at rest: a
// hand-rolled Base64 transform and a size-bounded DEFLATE wrapper.
//
// Decode is intentionally lenient. Bytes outside the alphabet are dropped and
// decoding stops at the first '=' anywhere in the input. This keeps data
// produced by Encode round-tripping after whitespace or line-wrapping was
// introduced, but it is not a validating decoder and should not be trusted
// for third-party Base64.
package codec

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	padChar  = '='
	padIndex = 64
	invalid  = 0xFF
)

var decodeMap = func() [256]byte {
	var m [256]byte
	for i := range m {
		m[i] = invalid
	}
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = byte(i)
	}
	m[padChar] = padIndex
	return m
}()

// Encode returns the standard Base64 encoding of src with '=' padding.
func Encode(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	out := make([]byte, 0, (len(src)+2)/3*4)
	for i := 0; i < len(src); i += 3 {
		switch len(src) - i {
		case 1:
			a := src[i]
			out = append(out, alphabet[a>>2], alphabet[(a&0x03)<<4], padChar, padChar)
		case 2:
			a, b := src[i], src[i+1]
			out = append(out, alphabet[a>>2], alphabet[(a&0x03)<<4|b>>4], alphabet[(b&0x0F)<<2], padChar)
		default:
			a, b, c := src[i], src[i+1], src[i+2]
			out = append(out, alphabet[a>>2], alphabet[(a&0x03)<<4|b>>4], alphabet[(b&0x0F)<<2|c>>6], alphabet[c&0x3F])
		}
	}
	return out
}

// EncodeToString is Encode returning a string.
func EncodeToString(src []byte) string { return string(Encode(src)) }

// Decode reverses Encode. Non-alphabet bytes are skipped, the first '=' ends
// the input, and a trailing group of a single sextet carries no full byte and
// is discarded. Decode never fails.
func Decode(src []byte) []byte {
	sextets := make([]byte, 0, len(src))
	for _, c := range src {
		v := decodeMap[c]
		if v == invalid {
			continue
		}
		if v == padIndex {
			break
		}
		sextets = append(sextets, v)
	}

	out := make([]byte, 0, len(sextets)*3/4)
	full := len(sextets) / 4 * 4
	for i := 0; i < full; i += 4 {
		a, b, c, d := sextets[i], sextets[i+1], sextets[i+2], sextets[i+3]
		out = append(out, a<<2|b>>4, (b&0x0F)<<4|c>>2, (c&0x03)<<6|d)
	}
	switch rest := sextets[full:]; len(rest) {
	case 2:
		out = append(out, rest[0]<<2|rest[1]>>4)
	case 3:
		out = append(out, rest[0]<<2|rest[1]>>4, (rest[1]&0x0F)<<4|rest[2]>>2)
	}
	return out
}

// DecodeString is Decode over a string.
func DecodeString(s string) []byte { return Decode([]byte(s)) }
