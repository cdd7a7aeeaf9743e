package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/haukened/livedata/internal/cipher"
	"github.com/haukened/livedata/internal/codec"
	"github.com/haukened/livedata/internal/metrics"
)

// ErrReadFile wraps failures to read a target file, as opposed to failures to
// decrypt or decode its contents.
var ErrReadFile = errors.New("read file")

// SampleJSON is the document written by CreateSample.
const SampleJSON = `{"test":"Hello there! If you're reading this then that means that the data editor works!"}`

// Service runs the save and load pipelines. Save is compress, encrypt,
// snapshot, write; Load is read, decrypt, decompress, decode UTF-8.
type Service struct {
	Cipher  Cipher
	Codec   Compressor
	Backups Backups
	Files   Files
	Keys    cipher.KeyMaterial
	Metrics Recorder     // optional
	Logger  *slog.Logger // optional
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default().With("domain", "service")
	}
	return s.Logger.With("domain", "service")
}

func (s *Service) inc(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name, 1)
	}
}

func (s *Service) observe(name string, v int64) {
	if s.Metrics != nil {
		s.Metrics.Observe(name, v)
	}
}

// Encode runs the in-memory half of Save: compress then encrypt.
func (s *Service) Encode(text string) ([]byte, error) {
	deflated, err := s.Codec.Compress([]byte(text))
	if err != nil {
		return nil, err
	}
	return s.Cipher.Encrypt(deflated, s.Keys)
}

// Decode runs the in-memory half of Load: decrypt, decompress, then UTF-8 validation.
func (s *Service) Decode(data []byte) (string, error) {
	plain, err := s.Cipher.Decrypt(data, s.Keys)
	if err != nil {
		return "", err
	}
	inflated, err := s.Codec.Decompress(plain)
	if err != nil {
		return "", err
	}
	return codec.ToText(inflated)
}

// Save encodes text and replaces path with the result. When path already
// exists its current contents are snapshotted first; a failed snapshot aborts
// the save and leaves path untouched.
func (s *Service) Save(ctx context.Context, path, text string) error {
	err := s.save(ctx, path, text)
	if err != nil {
		s.inc(metrics.CounterSaveFailures)
		s.log().Error("save", "path", path, "cipher", s.Cipher.Selected().String(), "err", err)
		return err
	}
	s.inc(metrics.CounterSaves)
	s.observe(metrics.SummaryPayloadBytes, int64(len(text)))
	return nil
}

func (s *Service) save(ctx context.Context, path, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := s.Encode(text)
	if err != nil {
		return err
	}
	return s.replace(ctx, path, out)
}

// replace snapshots path when it exists and then writes data over it.
func (s *Service) replace(ctx context.Context, path string, data []byte) error {
	exists, err := s.Files.Exists(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFile, err)
	}
	if exists && s.Backups != nil {
		entry, err := s.Backups.Snapshot(ctx, path)
		if err != nil {
			return err
		}
		if entry.Name != "" {
			s.inc(metrics.CounterSnapshots)
		}
	}
	return s.Files.WriteFile(path, data)
}

// Load reads path and returns its decoded text. Read failures wrap ErrReadFile.
func (s *Service) Load(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := s.Files.ReadFile(path)
	if err != nil {
		s.inc(metrics.CounterLoadFailures)
		return "", fmt.Errorf("%w: %w", ErrReadFile, err)
	}
	text, err := s.Decode(data)
	if err != nil {
		s.inc(metrics.CounterLoadFailures)
		s.log().Debug("decode", "path", path, "cipher", s.Cipher.Selected().String(), "err", err)
		return "", err
	}
	s.inc(metrics.CounterLoads)
	return text, nil
}

// CreateSample saves SampleJSON to path through the normal save pipeline.
func (s *Service) CreateSample(ctx context.Context, path string) error {
	return s.Save(ctx, path, SampleJSON)
}

// Restore writes the raw bytes of a backup entry back to target. The current
// target, if any, is snapshotted first so a restore can itself be undone.
func (s *Service) Restore(ctx context.Context, backupName, target string) error {
	if s.Backups == nil {
		return errors.New("backups are not configured")
	}
	rc, err := s.Backups.Open(backupName)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}
	if err := s.replace(ctx, target, data); err != nil {
		return err
	}
	s.log().Info("restored backup", "backup", backupName, "path", target)
	return nil
}
