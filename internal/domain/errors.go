// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers. Callers match them
// with errors.Is; lower layers attach causes with fmt.Errorf("%w: ...").
var (
	ErrMissingKeyMaterial = errors.New("missing key material")
	ErrUnsupportedCipher  = errors.New("unsupported cipher")
	// ErrProviderFailure covers a wrong key and corrupt input alike.
	ErrProviderFailure  = errors.New("cipher provider failure")
	ErrCompression      = errors.New("compression failed")
	ErrDecompression    = errors.New("decompression failed")
	ErrCapacityExceeded = errors.New("output capacity exceeded")
	ErrInvalidEncoding  = errors.New("payload is not valid utf-8")
	ErrBackupIO         = errors.New("backup snapshot failed")
	ErrPruneEntry       = errors.New("backup entry could not be pruned")
)
