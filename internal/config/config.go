// Package config provides layered configuration loading for the live data
// editor. It merges Defaults -> Environment Variables, with validation; the
// CLI applies its own flag overrides on top of the loaded Config.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/livedata/internal/cipher"
	"github.com/haukened/livedata/internal/codec"
	"github.com/haukened/livedata/internal/domain"
)

// EnvPrefix is stripped from environment variables before they become keys:
// LIVEDATA_MAX_BACKUPS_PER_FILE sets max_backups_per_file.
const EnvPrefix = "LIVEDATA_"

// Config holds the merged runtime configuration.
type Config struct {
	DataRoot            string          `koanf:"data_root" validate:"required"`
	AppID               string          `koanf:"app_id" validate:"required,path_element"`
	Cipher              domain.CipherID `koanf:"cipher" validate:"cipher_id"`
	Key                 string          `koanf:"key" validate:"omitempty,hexadecimal"`
	IV                  string          `koanf:"iv" validate:"omitempty,hexadecimal"`
	PublicKeyFile       string          `koanf:"public_key_file"`
	PrivateKeyFile      string          `koanf:"private_key_file"`
	BackupsEnabled      bool            `koanf:"backups_enabled"`
	MaxBackupsPerFile   int             `koanf:"max_backups_per_file" validate:"gte=0"`
	BackupRetentionDays int             `koanf:"backup_retention_days" validate:"gte=0"`
	MaxPayloadBytes     int             `koanf:"max_payload_bytes" validate:"gt=0"`
	SweepInterval       time.Duration   `koanf:"sweep_interval"`
	LogLevel            string          `koanf:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultAppConfig holds the values used when nothing else is configured.
var DefaultAppConfig = Config{
	DataRoot:            defaultDataRoot(),
	AppID:               "LiveDataEditor",
	Cipher:              domain.CipherAES256,
	BackupsEnabled:      true,
	MaxBackupsPerFile:   5,
	BackupRetentionDays: 30,
	MaxPayloadBytes:     codec.DefaultLimit,
	SweepInterval:       time.Hour,
	LogLevel:            "info",
}

func defaultDataRoot() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	return "./data"
}

// defaultLoader seeds k with DefaultAppConfig.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

// envLoader overlays LIVEDATA_* environment variables onto k.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil)
}

// registerValidators installs the custom validation rules used by Config.
var registerValidators = func(v *validator.Validate) error {
	if err := v.RegisterValidation("cipher_id", validCipherID); err != nil {
		return err
	}
	return v.RegisterValidation("path_element", validPathElement)
}

// Load builds a Config from defaults and environment variables and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				StringToCipherID(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if cfg.SweepInterval <= 0 {
		return nil, errors.New("sweep_interval must be positive")
	}
	if cfg.IV != "" && len(cfg.IV) != 32 {
		return nil, errors.New("iv must be 16 bytes of hex")
	}
	return &cfg, nil
}

// StringToCipherID is a DecodeHookFunc that converts a cipher name or alias
// to domain.CipherID.
func StringToCipherID() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(domain.CipherID("")) {
			return data, nil
		}
		s := strings.TrimSpace(reflect.ValueOf(data).String())
		if s == "" {
			return nil, errors.New("empty cipher name")
		}
		return domain.ParseCipherID(s)
	}
}

func validCipherID(fl validator.FieldLevel) bool {
	return domain.CipherID(fl.Field().String()).Valid()
}

// validPathElement accepts a single, non-traversing path element.
func validPathElement(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

// AppDir is the per-application directory under DataRoot.
func (c *Config) AppDir() string { return filepath.Join(c.DataRoot, c.AppID) }

// BackupDir is where snapshots are kept.
func (c *Config) BackupDir() string { return filepath.Join(c.AppDir(), "Backups") }

// SQLiteDSN returns the DSN of the metrics database.
func (c *Config) SQLiteDSN() string {
	return "file:" + filepath.Join(c.AppDir(), "metrics.db") + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
}

// Retention returns the backup retention policy.
func (c *Config) Retention() domain.RetentionPolicy {
	return domain.RetentionPolicy{MaxCount: c.MaxBackupsPerFile, MaxAgeDays: c.BackupRetentionDays}
}

// KeyMaterial decodes the configured key and IV and reads the RSA key files.
// Unset entries stay nil; the cipher in use decides what is required.
func (c *Config) KeyMaterial() (cipher.KeyMaterial, error) {
	var km cipher.KeyMaterial
	var err error
	if km.Key, err = decodeHex("key", c.Key); err != nil {
		return km, err
	}
	if km.IV, err = decodeHex("iv", c.IV); err != nil {
		return km, err
	}
	if km.PublicKey, err = readOptional("public_key_file", c.PublicKeyFile); err != nil {
		return km, err
	}
	if km.PrivateKey, err = readOptional("private_key_file", c.PrivateKeyFile); err != nil {
		return km, err
	}
	return km, nil
}

func decodeHex(name, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

func readOptional(name, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path) // #nosec G304 operator-supplied key file
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}
