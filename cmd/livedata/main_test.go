package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/livedata/internal/app"
	"github.com/haukened/livedata/internal/domain"
	"github.com/haukened/livedata/internal/metrics"
	"github.com/haukened/livedata/internal/watch"
)

const (
	testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIV  = "f0e0d0c0b0a090807060504030201000"
)

// setEnv points configuration at a temporary data root.
func setEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("LIVEDATA_DATA_ROOT", root)
	t.Setenv("LIVEDATA_APP_ID", "test.editor")
	t.Setenv("LIVEDATA_KEY", testKey)
	t.Setenv("LIVEDATA_IV", testIV)
	t.Setenv("LIVEDATA_LOG_LEVEL", "error")
	return root
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, ensureDir(dir))
	require.NoError(t, ensureDir(dir))
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o600))
	assert.Error(t, ensureDir(f))
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("warn", &buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.True(t, newLogger("bogus", &buf).Enabled(context.Background(), 0))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	setEnv(t)
	file := filepath.Join(t.TempDir(), "save.dat")

	_, err := run(t, `{"level":3}`, "save", file)
	require.NoError(t, err)
	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "level")

	out, err := run(t, "", "load", file)
	require.NoError(t, err)
	assert.Equal(t, "{\"level\":3}\n", out)
}

func TestSaveBackupsAndRestore(t *testing.T) {
	root := setEnv(t)
	file := filepath.Join(t.TempDir(), "save.dat")

	_, err := run(t, "v1", "save", file)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = run(t, "v2", "save", file)
	require.NoError(t, err)

	backupDir := filepath.Join(root, "test.editor", "Backups")
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "save.dat."))

	out, err := run(t, "", "backups", file)
	require.NoError(t, err)
	assert.Contains(t, out, name)

	_, err = run(t, "", "restore", name, file)
	require.NoError(t, err)
	out, err = run(t, "", "load", file)
	require.NoError(t, err)
	assert.Equal(t, "v1\n", out)
}

func TestCipherFlag(t *testing.T) {
	setEnv(t)
	file := filepath.Join(t.TempDir(), "save.dat")
	_, err := run(t, "hello", "--cipher", "base64only", "save", file)
	require.NoError(t, err)

	// wrong cipher on load surfaces an error
	_, err = run(t, "", "--cipher", "XChaChaPoly", "load", file)
	assert.Error(t, err)

	out, err := run(t, "", "--cipher", "Base64", "load", file)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = run(t, "", "--cipher", "enigma", "load", file)
	assert.ErrorIs(t, err, domain.ErrUnsupportedCipher)
}

func TestSampleAndStats(t *testing.T) {
	setEnv(t)
	file := filepath.Join(t.TempDir(), "sample.dat")
	_, err := run(t, "", "--cipher", "Hollow Knight", "sample", file)
	require.NoError(t, err)
	out, err := run(t, "", "--cipher", "composite", "load", file)
	require.NoError(t, err)
	assert.Equal(t, app.SampleJSON+"\n", out)

	out, err = run(t, "", "stats")
	require.NoError(t, err)
	var report metrics.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.Counters[metrics.CounterSaves])
	assert.Equal(t, int64(1), report.Counters[metrics.CounterLoads])
}

func TestMissingKeyFails(t *testing.T) {
	setEnv(t)
	t.Setenv("LIVEDATA_KEY", "")
	file := filepath.Join(t.TempDir(), "save.dat")
	_, err := run(t, "x", "save", file)
	assert.ErrorIs(t, err, domain.ErrMissingKeyMaterial)
	_, statErr := os.Stat(file)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPruneCommand(t *testing.T) {
	root := setEnv(t)
	t.Setenv("LIVEDATA_MAX_BACKUPS_PER_FILE", "0")
	file := filepath.Join(t.TempDir(), "save.dat")
	for i := 0; i < 4; i++ {
		_, err := run(t, "v", "save", file)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	backupDir := filepath.Join(root, "test.editor", "Backups")
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	t.Setenv("LIVEDATA_MAX_BACKUPS_PER_FILE", "1")
	out, err := run(t, "", "prune", file)
	require.NoError(t, err)
	assert.Contains(t, out, "save.dat: pruned 2, kept 1, failed 0")

	out, err = run(t, "", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 backups across 1 files, failed 0")
}

func TestCiphersCommandNeedsNoConfig(t *testing.T) {
	t.Setenv("LIVEDATA_CIPHER", "not-a-cipher")
	out, err := run(t, "", "ciphers")
	require.NoError(t, err)
	assert.Equal(t, "AES256\nXChaChaPoly\nRSA\nBase64\nHollow Knight\nNone\n", out)
}

func TestInvalidConfig(t *testing.T) {
	setEnv(t)
	t.Setenv("LIVEDATA_MAX_PAYLOAD_BYTES", "-5")
	_, err := run(t, "", "load", "x")
	assert.Error(t, err)
}

// syncBuffer is a bytes.Buffer safe for the watch goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestWatchPrintsUpdates(t *testing.T) {
	setEnv(t)
	file := filepath.Join(t.TempDir(), "save.dat")
	_, err := run(t, "first", "save", file)
	require.NoError(t, err)

	out := &syncBuffer{}
	root, c := newRootCmd(strings.NewReader(""), out, &bytes.Buffer{})
	root.SetContext(context.Background())
	require.NoError(t, c.setup(root, nil))
	t.Cleanup(func() { _ = c.teardown() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.watch(ctx, file, watch.OpenFS) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "first") }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, c.rt.svc.Save(context.Background(), file, "second"))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "second") }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(file, []byte("garbage"), 0o600))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Failed to decrypt or parse file")
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("watch did not stop")
	}
}
