// Package main provides the livedata binary: a command line front end for the
// protected data file pipelines. It loads configuration from environment
// variables, applies command-line overrides, wires the cipher dispatcher,
// codec, backup manager and metrics store, and runs one subcommand.
//
// Long-running work (watch) installs a signal-aware context and stops the
// change monitor, retention sweeper and metrics flusher on exit.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haukened/livedata/internal/app"
	"github.com/haukened/livedata/internal/cipher"
	"github.com/haukened/livedata/internal/codec"
	"github.com/haukened/livedata/internal/config"
	"github.com/haukened/livedata/internal/metrics"
	"github.com/haukened/livedata/internal/store"
	"github.com/haukened/livedata/internal/store/filesystem"
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// newLogger returns a text logger on w at the named level.
func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// ensureDir creates dir with parents and checks it is a directory.
func ensureDir(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		return nil
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func openMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, *metrics.Manager, error) {
	if err := ensureDir(cfg.AppDir()); err != nil {
		return nil, nil, err
	}
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open metrics db: %w", err)
	}
	m := metrics.New(db, metrics.Config{Logger: logger})
	if err := m.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init metrics schema: %w", err)
	}
	return db, m, nil
}

// runtime is the wired application for one command invocation.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *cipher.Dispatcher
	backups    *store.Manager
	metrics    *metrics.Manager
	db         *sql.DB
	svc        *app.Service
}

var _ app.Recorder = (*metrics.Manager)(nil)

func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	km, err := cfg.KeyMaterial()
	if err != nil {
		return nil, err
	}
	c := codec.New(cfg.MaxPayloadBytes)
	d, err := cipher.NewDispatcher(cfg.Cipher, c, logger)
	if err != nil {
		return nil, err
	}
	bs, err := filesystem.New(cfg.BackupDir())
	if err != nil {
		return nil, err
	}
	backups := store.New(bs, store.Options{
		Enabled: cfg.BackupsEnabled,
		Policy:  cfg.Retention(),
		Clock:   realClock{},
		Logger:  logger,
	})
	db, m, err := openMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc := &app.Service{
		Cipher:  d,
		Codec:   c,
		Backups: backups,
		Files:   filesystem.Files{},
		Keys:    km,
		Metrics: m,
		Logger:  logger,
	}
	return &runtime{cfg: cfg, logger: logger, dispatcher: d, backups: backups, metrics: m, db: db, svc: svc}, nil
}

// Close flushes metrics and releases the database.
func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.metrics.Stop(ctx)
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	return err
}

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
