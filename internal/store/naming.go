package store

import (
	"strings"
	"time"
)

// stampLayout is ISO-8601 UTC with millisecond precision. Its fixed width lets
// ParseBackupName split base names that themselves contain dots.
const (
	stampLayout = "2006-01-02T15:04:05.000Z"
	backupExt   = ".bak"
)

// BackupName returns "<base>.<ISO-8601 UTC timestamp>.bak".
func BackupName(base string, t time.Time) string {
	return base + "." + t.UTC().Format(stampLayout) + backupExt
}

// ParseBackupName splits a name produced by BackupName. ok is false for any
// other name.
func ParseBackupName(name string) (base string, created time.Time, ok bool) {
	trimmed, found := strings.CutSuffix(name, backupExt)
	if !found || len(trimmed) < len(stampLayout)+2 {
		return "", time.Time{}, false
	}
	cut := len(trimmed) - len(stampLayout)
	if trimmed[cut-1] != '.' {
		return "", time.Time{}, false
	}
	t, err := time.Parse(stampLayout, trimmed[cut:])
	if err != nil {
		return "", time.Time{}, false
	}
	return trimmed[:cut-1], t, true
}

// backupPrefix is the listing prefix for one base filename. The trailing dot
// keeps "save.dat" from matching backups of "save.dat2".
func backupPrefix(base string) string { return base + "." }
