package cipher

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/haukened/livedata/internal/codec"
	"github.com/haukened/livedata/internal/domain"
)

// Dispatcher holds the active cipher selection and routes calls to the
// matching Strategy. The selection is read once per call, so a concurrent
// Select never splits a single Encrypt or Decrypt across two ciphers.
type Dispatcher struct {
	mu       sync.RWMutex
	selected domain.CipherID

	codec  *codec.Codec
	logger *slog.Logger
}

// NewDispatcher returns a Dispatcher with id selected. Unknown ids are rejected.
func NewDispatcher(id domain.CipherID, c *codec.Codec, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = codec.New(codec.DefaultLimit)
	}
	d := &Dispatcher{codec: c, logger: logger.With("domain", "cipher")}
	if err := d.Select(id); err != nil {
		return nil, err
	}
	return d, nil
}

// Select replaces the active cipher.
func (d *Dispatcher) Select(id domain.CipherID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedCipher, id)
	}
	d.mu.Lock()
	prev := d.selected
	d.selected = id
	d.mu.Unlock()
	if prev != id {
		d.logger.Info("cipher selected", "cipher", id.String(), "previous", prev.String())
	}
	return nil
}

// Selected returns the active cipher.
func (d *Dispatcher) Selected() domain.CipherID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

// Encrypt transforms data with the active cipher. On failure no output is returned.
func (d *Dispatcher) Encrypt(data []byte, km KeyMaterial) ([]byte, error) {
	return d.EncryptAs(d.Selected(), data, km)
}

// Decrypt reverses Encrypt with the active cipher.
func (d *Dispatcher) Decrypt(data []byte, km KeyMaterial) ([]byte, error) {
	return d.DecryptAs(d.Selected(), data, km)
}

// EncryptAs transforms data with an explicit cipher, ignoring the selection.
func (d *Dispatcher) EncryptAs(id domain.CipherID, data []byte, km KeyMaterial) ([]byte, error) {
	s, err := Resolve(id, km, d.codec)
	if err != nil {
		return nil, err
	}
	out, err := s.Encrypt(data)
	if err != nil {
		d.logger.Debug("encrypt failed", "cipher", id.String(), "algorithm", s.Algorithm(), "err", err)
		return nil, err
	}
	return out, nil
}

// DecryptAs reverses EncryptAs.
func (d *Dispatcher) DecryptAs(id domain.CipherID, data []byte, km KeyMaterial) ([]byte, error) {
	s, err := Resolve(id, km, d.codec)
	if err != nil {
		return nil, err
	}
	out, err := s.Decrypt(data)
	if err != nil {
		d.logger.Debug("decrypt failed", "cipher", id.String(), "algorithm", s.Algorithm(), "err", err)
		return nil, err
	}
	return out, nil
}
