// Package domain retention.go contains backup entries and the retention policy applied to them.
package domain

import (
	"path/filepath"
	"time"
)

// RetentionPolicy holds two independent eviction knobs. Zero disables a knob.
type RetentionPolicy struct {
	MaxCount   int
	MaxAgeDays int
}

// Unlimited reports whether neither knob is active.
func (p RetentionPolicy) Unlimited() bool { return p.MaxCount <= 0 && p.MaxAgeDays <= 0 }

// Cutoff returns now minus MaxAgeDays whole days. ok is false when the age knob is disabled.
func (p RetentionPolicy) Cutoff(now time.Time) (cutoff time.Time, ok bool) {
	if p.MaxAgeDays <= 0 {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(p.MaxAgeDays) * 24 * time.Hour), true
}

// BackupEntry is one immutable snapshot of a file taken before it was overwritten.
// A zero CreatedAt means the creation time could not be read; such entries sort
// as the oldest.
type BackupEntry struct {
	Dir       string
	Name      string
	Base      string
	CreatedAt time.Time
	Size      int64
}

// Path returns the full filesystem path of the entry.
func (e BackupEntry) Path() string { return filepath.Join(e.Dir, e.Name) }

// OlderThan reports whether the entry was created strictly before t.
func (e BackupEntry) OlderThan(t time.Time) bool { return e.CreatedAt.Before(t) }
