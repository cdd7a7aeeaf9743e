// Package watch re-runs the load pipeline whenever a watched file changes and
// publishes the latest result to a single Slot. At most one file is watched at
// a time; notifications for it are handled one by one on a dedicated
// goroutine.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/haukened/livedata/internal/metrics"
)

// Loader runs the load pipeline for one file. app.Service satisfies it.
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
}

// Source delivers change notifications for one file. Events may coalesce;
// both channels are closed once the source is closed.
type Source interface {
	Events() <-chan struct{}
	Errors() <-chan error
	Close() error
}

// Opener starts a Source for path.
type Opener func(path string) (Source, error)

// Recorder receives reload counters. metrics.Manager satisfies it.
type Recorder interface {
	Inc(name string, delta int64)
}

// Options configures a Monitor. Zero values select OpenFS, slog.Default and
// the wall clock.
type Options struct {
	Open     Opener
	Logger   *slog.Logger
	Recorder Recorder
	Now      func() time.Time
}

// Monitor watches one file and reloads it on change.
type Monitor struct {
	loader   Loader
	slot     *Slot
	open     Opener
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu     sync.Mutex
	active *session
}

type session struct {
	path   string
	src    Source
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Monitor publishing into slot.
func New(loader Loader, slot *Slot, opts Options) *Monitor {
	if opts.Open == nil {
		opts.Open = OpenFS
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Monitor{
		loader:   loader,
		slot:     slot,
		open:     opts.Open,
		logger:   opts.Logger.With("domain", "watch"),
		recorder: opts.Recorder,
		now:      opts.Now,
	}
}

// Start watches path, replacing any previous watch. The previous watch is
// fully released before the new one is opened. The file is loaded once
// immediately and again after every change notification.
func (m *Monitor) Start(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()

	src, err := m.open(path)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &session{path: path, src: src, cancel: cancel, done: make(chan struct{})}
	m.active = s
	m.logger.Info("watch started", "path", path)
	go m.run(sctx, s)
	return nil
}

// Stop releases the active watch, if any, and waits for its goroutine.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Path returns the watched file, or "" when idle.
func (m *Monitor) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.path
}

func (m *Monitor) stopLocked() {
	s := m.active
	if s == nil {
		return
	}
	m.active = nil
	s.cancel()
	if err := s.src.Close(); err != nil {
		m.logger.Warn("close watch", "path", s.path, "err", err)
	}
	<-s.done
	m.logger.Info("watch stopped", "path", s.path)
}

func (m *Monitor) run(ctx context.Context, s *session) {
	defer close(s.done)
	log := m.logger.With("path", s.path)
	events, errs := s.src.Events(), s.src.Errors()

	last := m.reload(ctx, s.path, "", log)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			last = m.reload(ctx, s.path, last, log)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn("watch error", "err", err)
		}
	}
}

// reload loads path and publishes the outcome. It returns the text to diff the
// next successful load against.
func (m *Monitor) reload(ctx context.Context, path, prev string, log *slog.Logger) string {
	text, err := m.loader.Load(ctx, path)
	if ctx.Err() != nil {
		return prev
	}
	u := Update{Path: path, Text: text, Err: err, At: m.now()}
	if err != nil {
		log.Warn("reload failed", "err", err)
		m.inc(metrics.CounterReloadFailures)
		m.slot.Publish(u)
		return prev
	}
	m.inc(metrics.CounterReloads)
	if text != prev && log.Enabled(ctx, slog.LevelDebug) {
		diff, derr := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(prev),
			B:        difflib.SplitLines(text),
			FromFile: "previous",
			ToFile:   "current",
			Context:  1,
		})
		if derr == nil {
			log.Debug("reloaded", "bytes", len(text), "diff", diff)
		}
	}
	m.slot.Publish(u)
	return text
}

func (m *Monitor) inc(name string) {
	if m.recorder != nil {
		m.recorder.Inc(name, 1)
	}
}
