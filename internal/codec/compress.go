package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/haukened/livedata/internal/domain"
)

// DefaultLimit caps the output of a single Compress or Decompress call. It is
// an inherited resource bound: payloads whose output would exceed it fail with
// domain.ErrCapacityExceeded instead of growing the buffer.
const DefaultLimit = 10_000_000

// Codec performs raw DEFLATE (RFC 1951) compression with a hard output limit.
// The zero value uses DefaultLimit.
type Codec struct {
	Limit int
}

// New returns a Codec with the given output limit; limit <= 0 selects DefaultLimit.
func New(limit int) *Codec {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Codec{Limit: limit}
}

var std = New(DefaultLimit)

func (c *Codec) limit() int {
	if c == nil || c.Limit <= 0 {
		return DefaultLimit
	}
	return c.Limit
}

// Compress deflates src. Failures wrap domain.ErrCompression; an output larger
// than the limit additionally wraps domain.ErrCapacityExceeded.
func (c *Codec) Compress(src []byte) ([]byte, error) {
	out := &boundedBuffer{limit: c.limit()}
	w, err := flate.NewWriter(out, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCompression, err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCompression, err)
	}
	return out.Bytes(), nil
}

// Decompress inflates src. Corrupt input, truncated input and outputs larger
// than the limit all wrap domain.ErrDecompression.
func (c *Codec) Decompress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrDecompression)
	}
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	out := &boundedBuffer{limit: c.limit()}
	if _, err := io.Copy(out, r); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDecompression, err)
	}
	return out.Bytes(), nil
}

// Compress deflates src using DefaultLimit.
func Compress(src []byte) ([]byte, error) { return std.Compress(src) }

// Decompress inflates src using DefaultLimit.
func Decompress(src []byte) ([]byte, error) { return std.Decompress(src) }

// boundedBuffer refuses any write that would take it past limit.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.limit {
		return 0, fmt.Errorf("%w: limit %d bytes", domain.ErrCapacityExceeded, b.limit)
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) Bytes() []byte { return b.buf.Bytes() }
