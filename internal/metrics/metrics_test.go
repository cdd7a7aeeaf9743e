package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTempDB creates an isolated sqlite database file for tests.
func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newManager(t *testing.T, db *sql.DB, interval time.Duration) *Manager {
	t.Helper()
	m := New(db, Config{FlushInterval: interval})
	require.NoError(t, m.InitSchema(context.Background()))
	return m
}

func persistedCounter(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var v int64
	err := db.QueryRow(`SELECT value FROM metrics_counters WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0
	}
	require.NoError(t, err)
	return v
}

func TestPipelineTotalsSurviveRestart(t *testing.T) {
	db := openTempDB(t)
	ctx := context.Background()

	first := newManager(t, db, time.Hour)
	first.Inc(CounterSaves, 1)
	first.Inc(CounterSaves, 1)
	first.Inc(CounterSaveFailures, 1)
	first.Inc(CounterSnapshots, 1)
	first.Observe(SummaryPayloadBytes, 90)
	first.Observe(SummaryPayloadBytes, 12)
	require.NoError(t, first.Stop(ctx))

	second := newManager(t, db, time.Hour)
	second.Inc(CounterSaves, 1)
	second.Observe(SummaryPayloadBytes, 300)
	second.drain()

	counters, summaries, err := second.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters[CounterSaves])
	assert.Equal(t, int64(1), counters[CounterSaveFailures])
	assert.Equal(t, int64(1), counters[CounterSnapshots])
	assert.Equal(t, Summary{Count: 3, Sum: 402, Min: 12, Max: 300}, summaries[SummaryPayloadBytes])
}

func TestFailedFlushKeepsPendingTotals(t *testing.T) {
	db := openTempDB(t)
	ctx := context.Background()
	m := New(db, Config{FlushInterval: time.Hour}) // no schema yet, so the flush fails

	m.Inc(CounterSaves, 3)
	m.Observe(SummaryPayloadBytes, 64)
	require.Error(t, m.Stop(ctx))

	// recorded after the failure; must merge with what was retained
	m.Inc(CounterSaves, 1)
	m.Observe(SummaryPayloadBytes, 8)
	m.drain()

	require.NoError(t, m.InitSchema(ctx))
	require.NoError(t, m.flush(ctx))
	assert.Equal(t, int64(4), persistedCounter(t, db, CounterSaves))

	counters, summaries, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counters[CounterSaves], "flushed once, not twice")
	assert.Equal(t, Summary{Count: 2, Sum: 72, Min: 8, Max: 64}, summaries[SummaryPayloadBytes])
}

func TestSnapshotLayersPendingOverPersisted(t *testing.T) {
	db := openTempDB(t)
	ctx := context.Background()
	m := newManager(t, db, time.Hour)

	m.Observe(SummarySweeperPrunedPerCycle, 5)
	m.Observe(SummarySweeperPrunedPerCycle, 20)
	m.Inc(CounterBackupsPruned, 25)
	m.drain()
	require.NoError(t, m.flush(ctx))

	m.Observe(SummarySweeperPrunedPerCycle, 2)
	m.Inc(CounterBackupsPruned, 2)
	m.Inc(CounterPruneFailures, 1)
	m.drain()

	counters, summaries, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{CounterBackupsPruned: 27, CounterPruneFailures: 1}, counters)
	assert.Equal(t, Summary{Count: 3, Sum: 27, Min: 2, Max: 20}, summaries[SummarySweeperPrunedPerCycle])
	assert.Equal(t, int64(25), persistedCounter(t, db, CounterBackupsPruned))
}

func TestStartFlushesOnInterval(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx)

	m.Inc(CounterReloads, 2)
	m.Inc(CounterReloadFailures, 1)
	require.Eventually(t, func() bool {
		var v int64
		err := db.QueryRow(`SELECT value FROM metrics_counters WHERE name = ?`, CounterReloads).Scan(&v)
		return err == nil && v == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()), "second stop is harmless")
	assert.Equal(t, int64(1), persistedCounter(t, db, CounterReloadFailures))
}

func TestStopAfterContextCancelFlushesRemainder(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	m.Inc(CounterLoads, 5)
	m.Inc(CounterLoadFailures, 2)
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, int64(5), persistedCounter(t, db, CounterLoads))
	assert.Equal(t, int64(2), persistedCounter(t, db, CounterLoadFailures))
}

func TestIncIgnoresNonPositive(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, time.Hour)
	m.Inc(CounterPruneFailures, 0)
	m.Inc(CounterPruneFailures, -3)
	assert.Empty(t, m.events)
	require.NoError(t, m.Stop(context.Background()))
	assert.Zero(t, persistedCounter(t, db, CounterPruneFailures))
}

func TestFullQueueDropsEvents(t *testing.T) {
	db := openTempDB(t)
	m := newManager(t, db, time.Hour)
	m.events = make(chan event, 1)
	m.Inc(CounterSaves, 1)
	m.Inc(CounterSaves, 100)
	m.Observe(SummaryPayloadBytes, 10)
	require.NoError(t, m.Stop(context.Background()))

	counters, summaries, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[CounterSaves])
	assert.NotContains(t, summaries, SummaryPayloadBytes)
}

func TestSummaryMerge(t *testing.T) {
	var s Summary
	s.merge(Summary{})
	assert.Zero(t, s)

	s.add(7)
	assert.Equal(t, Summary{Count: 1, Sum: 7, Min: 7, Max: 7}, s)

	s.merge(Summary{Count: 2, Sum: 3, Min: -1, Max: 4})
	assert.Equal(t, Summary{Count: 3, Sum: 10, Min: -1, Max: 7}, s)
}
