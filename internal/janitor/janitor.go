// Package janitor implements the background retention sweep over backup sets.
// Snapshots already prune the file they belong to; the sweep catches backup
// sets that age past the retention window while their file is never saved
// again. It runs independently from the save path so lifecycle concerns stay
// out of the request flow.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haukened/livedata/internal/metrics"
)

// Store is the part of the backup manager the Janitor requires.
type Store interface {
	// Bases lists every base filename that currently has backups.
	Bases(ctx context.Context) ([]string, error)
	// ApplyRetention prunes one base filename under the configured policy and
	// returns how many backups were removed and how many could not be.
	ApplyRetention(ctx context.Context, base string) (deleted, failed int, err error)
}

// Recorder receives sweep counters. metrics.Manager satisfies it.
type Recorder interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration // how often a cycle begins
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
}

// Cycle summarizes one sweep.
type Cycle struct {
	Files    int           // backup sets visited
	Deleted  int           // backups removed
	Failed   int           // backups that could not be removed, plus listing errors
	Duration time.Duration
}

// Janitor encapsulates the background sweep loop.
type Janitor struct {
	store    Store
	recorder Recorder
	cfg      Config

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Janitor. recorder may be nil.
func New(store Store, recorder Recorder, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Janitor{
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the janitor loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	} // already started
	j.ticker = time.NewTicker(j.cfg.Interval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion. It is a no-op on a
// Janitor that was never started.
func (j *Janitor) Stop() {
	if j.ticker == nil {
		return
	}
	j.once.Do(func() { close(j.stopCh) })
	<-j.doneCh
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep over every backup set. A failure on one base
// filename does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) Cycle {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	var c Cycle
	bases, err := j.store.Bases(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("list backup sets", "error", err)
		c.Failed++
	}
	for _, base := range bases {
		if ctx.Err() != nil {
			break
		}
		deleted, failed, err := j.store.ApplyRetention(ctx, base)
		c.Files++
		c.Deleted += deleted
		c.Failed += failed
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("retention", "file", base, "error", err)
			c.Failed++
		}
	}
	c.Duration = time.Since(start)
	if j.recorder != nil {
		j.recorder.Inc(metrics.CounterBackupsPruned, int64(c.Deleted))
		j.recorder.Inc(metrics.CounterPruneFailures, int64(c.Failed))
		j.recorder.Observe(metrics.SummarySweeperPrunedPerCycle, int64(c.Deleted))
	}
	log.Info("cycle complete", "files", c.Files, "deleted", c.Deleted, "failed", c.Failed, "ms", c.Duration.Milliseconds())
	return c
}
