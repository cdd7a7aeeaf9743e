// Package store implements the backup/retention manager. It snapshots a file
// into a backup directory before the file is overwritten and prunes each
// file's backup set under a count cap and an age cap. Persistence of the
// backup files themselves sits behind the BackupStorage port.
package store

import (
	"io"

	"github.com/haukened/livedata/internal/domain"
)

// BackupStorage abstracts the directory holding backup files.
type BackupStorage interface {
	// Root returns the backup directory.
	Root() string
	// Put creates a new entry named name from r, creating the directory if
	// needed. Existing entries are never overwritten.
	Put(name string, r io.Reader) (int64, error)
	Open(name string) (io.ReadCloser, error)
	Delete(name string) error
	// List returns every entry whose name starts with prefix. Entries whose
	// creation time cannot be read carry a zero CreatedAt.
	List(prefix string) ([]domain.BackupEntry, error)
}
