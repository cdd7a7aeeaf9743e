// Package metrics keeps usage totals for the save and load pipelines, the
// backup manager, the change monitor and the retention sweeper. Recorded
// values are queued, folded into a pending batch and written to SQLite on a
// ticker, so totals survive restarts. A batch that fails to persist stays
// pending and is retried with the next flush.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Counter names.
const (
	CounterSaves          = "saves_total"
	CounterSaveFailures   = "save_failures_total"
	CounterLoads          = "loads_total"
	CounterLoadFailures   = "load_failures_total"
	CounterSnapshots      = "snapshots_total"
	CounterBackupsPruned  = "backups_pruned_total"
	CounterPruneFailures  = "prune_failures_total"
	CounterReloads        = "reloads_total"
	CounterReloadFailures = "reload_failures_total"
)

// Summary names.
const (
	SummaryPayloadBytes          = "payload_bytes"
	SummarySweeperPrunedPerCycle = "sweeper_pruned_per_cycle"
)

const queueSize = 1024

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metrics_counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_summaries (
		name  TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		sum   INTEGER NOT NULL,
		min   INTEGER NOT NULL,
		max   INTEGER NOT NULL
	)`,
}

const (
	upsertCounter = `INSERT INTO metrics_counters(name, value) VALUES(?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`
	upsertSummary = `INSERT INTO metrics_summaries(name, count, sum, min, max) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			count = metrics_summaries.count + excluded.count,
			sum   = metrics_summaries.sum + excluded.sum,
			min   = MIN(metrics_summaries.min, excluded.min),
			max   = MAX(metrics_summaries.max, excluded.max)`
	selectCounters  = `SELECT name, value FROM metrics_counters`
	selectSummaries = `SELECT name, count, sum, min, max FROM metrics_summaries`
)

// Summary aggregates observations of one named value.
type Summary struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

func (s *Summary) add(v int64) {
	s.merge(Summary{Count: 1, Sum: v, Min: v, Max: v})
}

func (s *Summary) merge(o Summary) {
	if o.Count == 0 {
		return
	}
	if s.Count == 0 {
		*s = o
		return
	}
	s.Count += o.Count
	s.Sum += o.Sum
	s.Min = min(s.Min, o.Min)
	s.Max = max(s.Max, o.Max)
}

// batch is a set of counter deltas and summaries not yet persisted.
type batch struct {
	counters  map[string]int64
	summaries map[string]Summary
}

func newBatch() batch {
	return batch{counters: map[string]int64{}, summaries: map[string]Summary{}}
}

func (b batch) empty() bool { return len(b.counters) == 0 && len(b.summaries) == 0 }

func (b batch) merge(o batch) {
	for name, v := range o.counters {
		b.counters[name] += v
	}
	for name, s := range o.summaries {
		cur := b.summaries[name]
		cur.merge(s)
		b.summaries[name] = cur
	}
}

type event struct {
	name    string
	value   int64
	observe bool
}

// Config controls flush cadence and logging.
type Config struct {
	FlushInterval time.Duration // defaults to 5s
	Logger        *slog.Logger
}

// Manager records counters and summaries and persists them to SQLite.
type Manager struct {
	db       *sql.DB
	interval time.Duration
	logger   *slog.Logger

	events   chan event
	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once

	mu      sync.Mutex
	pending batch
}

// New creates a Manager. Call InitSchema before the first flush and Start to
// flush in the background.
func New(db *sql.DB, cfg Config) *Manager {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		db:       db,
		interval: cfg.FlushInterval,
		logger:   cfg.Logger.With("domain", "metrics"),
		events:   make(chan event, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		pending:  newBatch(),
	}
}

// InitSchema creates the metrics tables if they do not exist.
func (m *Manager) InitSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("metrics schema: %w", err)
		}
	}
	return nil
}

// Start launches the background loop. Later calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	if m.started {
		return
	}
	m.started = true
	go m.loop(ctx)
}

// Stop ends the background loop, folds in any queued events and flushes.
// A failed final flush is returned and its deltas remain pending.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		if m.started {
			close(m.stop)
			<-m.done
		}
	})
	m.drain()
	return m.flush(ctx)
}

// Inc adds delta to a counter. Non-positive deltas are ignored.
func (m *Manager) Inc(name string, delta int64) {
	if delta <= 0 {
		return
	}
	m.enqueue(event{name: name, value: delta})
}

// Observe adds one observation to a summary.
func (m *Manager) Observe(name string, value int64) {
	m.enqueue(event{name: name, value: value, observe: true})
}

// enqueue never blocks the caller; a full queue drops the event.
func (m *Manager) enqueue(ev event) {
	select {
	case m.events <- ev:
	default:
	}
}

func (m *Manager) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer func() {
		ticker.Stop()
		close(m.done)
	}()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("metrics stop", "reason", "context_cancel")
			return
		case <-m.stop:
			m.logger.Info("metrics stop", "reason", "stop_signal")
			return
		case ev := <-m.events:
			m.apply(ev)
		case <-ticker.C:
			if err := m.flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("flush", "error", err)
			}
		}
	}
}

// drain applies every queued event without blocking.
func (m *Manager) drain() {
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
		default:
			return
		}
	}
}

func (m *Manager) apply(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ev.observe {
		m.pending.counters[ev.name] += ev.value
		return
	}
	s := m.pending.summaries[ev.name]
	s.add(ev.value)
	m.pending.summaries[ev.name] = s
}

// Snapshot returns persisted totals with pending deltas layered on top.
// Events still queued are not included.
func (m *Manager) Snapshot(ctx context.Context) (map[string]int64, map[string]Summary, error) {
	totals, err := m.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	totals.merge(m.pending)
	m.mu.Unlock()
	return totals.counters, totals.summaries, nil
}

func (m *Manager) load(ctx context.Context) (batch, error) {
	b := newBatch()
	rows, err := m.db.QueryContext(ctx, selectCounters)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var v int64
		if err := rows.Scan(&name, &v); err != nil {
			return b, err
		}
		b.counters[name] = v
	}
	if err := rows.Err(); err != nil {
		return b, err
	}

	srows, err := m.db.QueryContext(ctx, selectSummaries)
	if err != nil {
		return b, err
	}
	defer srows.Close()
	for srows.Next() {
		var name string
		var s Summary
		if err := srows.Scan(&name, &s.Count, &s.Sum, &s.Min, &s.Max); err != nil {
			return b, err
		}
		b.summaries[name] = s
	}
	return b, srows.Err()
}

// flush persists the pending batch in one transaction. On failure the batch
// is merged back so nothing recorded is lost.
func (m *Manager) flush(ctx context.Context) error {
	m.mu.Lock()
	out := m.pending
	m.pending = newBatch()
	m.mu.Unlock()
	if out.empty() {
		return nil
	}
	if err := m.persist(ctx, out); err != nil {
		m.mu.Lock()
		out.merge(m.pending)
		m.pending = out
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, b batch) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for name, delta := range b.counters {
		if _, err = tx.ExecContext(ctx, upsertCounter, name, delta); err != nil {
			return fmt.Errorf("flush counter %s: %w", name, err)
		}
	}
	for name, s := range b.summaries {
		if _, err = tx.ExecContext(ctx, upsertSummary, name, s.Count, s.Sum, s.Min, s.Max); err != nil {
			return fmt.Errorf("flush summary %s: %w", name, err)
		}
	}
	return tx.Commit()
}
