// Package app defines the application layer "ports" (interfaces) that the
// save and load pipelines depend upon. It follows a hexagonal (ports &
// adapters) design: this package declares what the core needs, while adapter
// packages (cipher dispatcher, codec, filesystem backups, metrics) provide
// concrete implementations. No direct filesystem, SQL or network calls
// belong here.
package app

import (
	"context"
	"io"
	"time"

	"github.com/haukened/livedata/internal/cipher"
	"github.com/haukened/livedata/internal/domain"
)

// Clock abstracts time to enable deterministic testing of backup naming and retention.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// Cipher encrypts and decrypts payloads with the currently selected cipher.
// Implementations read the selection once per call.
type Cipher interface {
	Selected() domain.CipherID
	Encrypt(data []byte, km cipher.KeyMaterial) ([]byte, error)
	Decrypt(data []byte, km cipher.KeyMaterial) ([]byte, error)
}

// Compressor is the bounded compression stage of the pipelines.
type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// Backups snapshots a target file before it is overwritten and serves
// previously taken snapshots.
type Backups interface {
	// Snapshot copies the current contents of path into the backup set and
	// applies retention. A disabled backup manager returns a zero entry and nil.
	Snapshot(ctx context.Context, path string) (domain.BackupEntry, error)
	// Open returns the contents of the named backup entry.
	Open(name string) (io.ReadCloser, error)
}

// Files performs whole-file reads and crash-safe replacement writes of target files.
type Files interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile must leave either the old or the new contents at path, never a mix.
	WriteFile(path string, data []byte) error
	Exists(path string) (bool, error)
}

// Recorder receives pipeline counters and observations. metrics.Manager satisfies it.
type Recorder interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}
