// Package filesystem provides the local-disk adapters: a BackupStorage
// implementation holding immutable backup files, and Files for crash-safe
// replacement of target files.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/haukened/livedata/internal/domain"
	"github.com/haukened/livedata/internal/store"
)

// Ensure BackupStore implements store.BackupStorage
var _ store.BackupStorage = (*BackupStore)(nil)

// BackupStore implements store.BackupStorage using one flat directory.
type BackupStore struct {
	root string
}

// New returns a backup store rooted at dir. The directory is created lazily
// on the first Put.
func New(root string) (*BackupStore, error) {
	if root == "" {
		return nil, errors.New("backup root must not be empty")
	}
	if fi, err := os.Stat(root); err == nil && !fi.IsDir() {
		return nil, errors.New("backup root is not a directory")
	}
	return &BackupStore{root: filepath.Clean(root)}, nil
}

// Root returns the backup directory.
func (b *BackupStore) Root() string { return b.root }

func (b *BackupStore) path(name string) string { return filepath.Join(b.root, name) }

// Put copies r into a new file named name. The directory is created with
// parents if absent; an existing file with the same name is an error.
func (b *BackupStore) Put(name string, r io.Reader) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(b.root, 0o700); err != nil {
		return 0, err
	}
	p := b.path(name)
	// #nosec G304: path is the fixed root plus a validated single path element.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		// delete partial file on error
		_ = os.Remove(p)
		return 0, err
	}
	return n, nil
}

// Open opens a backup file for reading.
func (b *BackupStore) Open(name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return os.Open(b.path(name)) // #nosec G304 path constructed internally
}

// Delete removes a backup file.
func (b *BackupStore) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return os.Remove(b.path(name))
}

// List returns the regular files in the backup directory whose names start
// with prefix. Creation time comes from the timestamp embedded in the name,
// then the file's modification time; an entry whose time cannot be read keeps
// a zero CreatedAt. A missing directory lists as empty.
func (b *BackupStore) List(prefix string) ([]domain.BackupEntry, error) {
	dirents, err := os.ReadDir(b.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []domain.BackupEntry
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		e := domain.BackupEntry{Dir: b.root, Name: name}
		if base, created, ok := store.ParseBackupName(name); ok {
			e.Base = base
			e.CreatedAt = created
		}
		if info, err := d.Info(); err == nil {
			e.Size = info.Size()
			if e.CreatedAt.IsZero() {
				e.CreatedAt = info.ModTime().UTC()
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// validateName allows a single non-empty path element only.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid backup name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("invalid backup name %q: contains a path separator", name)
	}
	return nil
}
