package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/haukened/livedata/internal/app"
	"github.com/haukened/livedata/internal/domain"
)

// maxNameCollisions bounds how far Snapshot moves a timestamp forward to find
// a free backup name.
const maxNameCollisions = 1000

// Options configures a Manager.
type Options struct {
	Enabled bool
	Policy  domain.RetentionPolicy
	Clock   app.Clock    // defaults to UTC wall clock
	Logger  *slog.Logger // defaults to slog.Default()
}

// Manager creates backup snapshots and prunes them. Work on one base filename
// is serialized; different base filenames proceed independently.
type Manager struct {
	storage BackupStorage
	enabled bool
	policy  domain.RetentionPolicy
	clock   app.Clock
	logger  *slog.Logger

	locks keyedMutex
}

var _ app.Backups = (*Manager)(nil)

// New returns a Manager persisting into storage.
func New(storage BackupStorage, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = utcClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		storage: storage,
		enabled: opts.Enabled,
		policy:  opts.Policy,
		clock:   opts.Clock,
		logger:  opts.Logger.With("domain", "backup"),
	}
}

// Policy returns the retention policy applied after each snapshot.
func (m *Manager) Policy() domain.RetentionPolicy { return m.policy }

// Snapshot copies the current contents of target into the backup directory as
// "<name>.<timestamp>.bak" and then prunes that file's backups. Copy failures
// wrap domain.ErrBackupIO and must block the overwrite they guard. Prune
// problems are logged only; the snapshot itself already succeeded.
func (m *Manager) Snapshot(ctx context.Context, target string) (domain.BackupEntry, error) {
	if !m.enabled {
		return domain.BackupEntry{}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.BackupEntry{}, err
	}
	base := filepath.Base(target)
	unlock := m.locks.lock(base)
	defer unlock()

	// #nosec G304: target is the file the caller is about to overwrite.
	f, err := os.Open(target)
	if err != nil {
		return domain.BackupEntry{}, fmt.Errorf("%w: open %s: %w", domain.ErrBackupIO, target, err)
	}
	defer f.Close()

	created := m.clock.Now().UTC().Truncate(time.Millisecond)
	var (
		name string
		size int64
	)
	for attempt := 0; ; attempt++ {
		name = BackupName(base, created)
		size, err = m.storage.Put(name, f)
		if err == nil {
			break
		}
		// a snapshot of this file already exists for this millisecond
		if errors.Is(err, fs.ErrExist) && attempt < maxNameCollisions {
			if _, serr := f.Seek(0, io.SeekStart); serr == nil {
				created = created.Add(time.Millisecond)
				continue
			}
		}
		return domain.BackupEntry{}, fmt.Errorf("%w: write %s: %w", domain.ErrBackupIO, name, err)
	}
	entry := domain.BackupEntry{Dir: m.storage.Root(), Name: name, Base: base, CreatedAt: created, Size: size}
	m.logger.Info("snapshot created", "file", base, "backup", name, "bytes", size)

	if _, err := m.prune(ctx, base, m.policy); err != nil {
		m.logger.Warn("prune after snapshot", "file", base, "err", err)
	}
	return entry, nil
}

// PruneReport describes one retention pass. Failed holds per-entry errors
// wrapping domain.ErrPruneEntry; they never abort the pass. Kept lists every
// entry still on disk afterwards, including those whose deletion failed.
type PruneReport struct {
	Deleted []domain.BackupEntry
	Kept    []domain.BackupEntry
	Failed  []error
}

// Prune applies policy to the backups of base. The count cap runs first and
// removes the oldest entries beyond MaxCount; the age cap then runs over what
// is left and removes everything created before now - MaxAgeDays. Only a
// failure to list the directory is returned as an error.
func (m *Manager) Prune(ctx context.Context, base string, policy domain.RetentionPolicy) (PruneReport, error) {
	unlock := m.locks.lock(base)
	defer unlock()
	return m.prune(ctx, base, policy)
}

func (m *Manager) prune(ctx context.Context, base string, policy domain.RetentionPolicy) (PruneReport, error) {
	var report PruneReport
	entries, err := m.entries(base)
	if err != nil {
		return report, err
	}
	sortOldestFirst(entries)

	var stuck []domain.BackupEntry
	remaining := entries
	if policy.MaxCount > 0 && len(remaining) > policy.MaxCount {
		excess := len(remaining) - policy.MaxCount
		for _, e := range remaining[:excess] {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if !m.remove(e, &report) {
				stuck = append(stuck, e)
			}
		}
		remaining = remaining[excess:]
	}

	if cutoff, ok := policy.Cutoff(m.clock.Now()); ok {
		var kept []domain.BackupEntry
		for _, e := range remaining {
			if !e.OlderThan(cutoff) {
				kept = append(kept, e)
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if !m.remove(e, &report) {
				stuck = append(stuck, e)
			}
		}
		remaining = kept
	}
	report.Kept = append(stuck, remaining...)
	sortOldestFirst(report.Kept)

	if len(report.Deleted) > 0 || len(report.Failed) > 0 {
		m.logger.Info("pruned backups", "file", base, "deleted", len(report.Deleted), "failed", len(report.Failed), "kept", len(report.Kept))
	}
	return report, nil
}

// remove deletes e and reports whether it is gone.
func (m *Manager) remove(e domain.BackupEntry, report *PruneReport) bool {
	if err := m.storage.Delete(e.Name); err != nil {
		perr := fmt.Errorf("%w: %s: %w", domain.ErrPruneEntry, e.Name, err)
		m.logger.Warn("prune entry", "backup", e.Name, "err", err)
		report.Failed = append(report.Failed, perr)
		return false
	}
	report.Deleted = append(report.Deleted, e)
	return true
}

// ApplyRetention prunes base with the configured policy and returns how many
// entries were deleted and how many could not be.
func (m *Manager) ApplyRetention(ctx context.Context, base string) (deleted, failed int, err error) {
	report, err := m.Prune(ctx, base, m.policy)
	return len(report.Deleted), len(report.Failed), err
}

// List returns the backups of base, newest first.
func (m *Manager) List(base string) ([]domain.BackupEntry, error) {
	entries, err := m.entries(base)
	if err != nil {
		return nil, err
	}
	sortOldestFirst(entries)
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Bases returns every base filename that has at least one backup, sorted.
func (m *Manager) Bases(ctx context.Context) ([]string, error) {
	entries, err := m.storage.List("")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var bases []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base, _, ok := ParseBackupName(e.Name)
		if !ok {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		bases = append(bases, base)
	}
	sort.Strings(bases)
	return bases, nil
}

// Open returns the contents of a backup entry.
func (m *Manager) Open(name string) (io.ReadCloser, error) {
	if _, _, ok := ParseBackupName(name); !ok {
		return nil, errors.New("not a backup name")
	}
	return m.storage.Open(name)
}

func (m *Manager) entries(base string) ([]domain.BackupEntry, error) {
	if base == "" {
		return nil, errors.New("empty base filename")
	}
	all, err := m.storage.List(backupPrefix(base))
	if err != nil {
		return nil, err
	}
	entries := all[:0]
	for _, e := range all {
		// "save.dat." also prefixes backups of "save.dat.old"
		if b, _, ok := ParseBackupName(e.Name); ok && b != base {
			continue
		}
		e.Base = base
		entries = append(entries, e)
	}
	return entries, nil
}

// sortOldestFirst orders by creation time, ties broken by name.
func sortOldestFirst(entries []domain.BackupEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Name < b.Name
	})
}

// keyedMutex hands out one mutex per key. Keys are never evicted; there is one
// per distinct backed-up filename.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
