package metrics

import (
	"context"
	"encoding/json"
	"io"
)

// SnapshotProvider abstracts Manager for testing.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (map[string]int64, map[string]Summary, error)
}

// Report is the JSON document written by WriteReport.
type Report struct {
	Counters  map[string]int64   `json:"counters"`
	Summaries map[string]Summary `json:"summaries"`
}

// WriteReport writes the provider's current snapshot to w as indented JSON.
func WriteReport(ctx context.Context, w io.Writer, provider SnapshotProvider) error {
	counters, summaries, err := provider.Snapshot(ctx)
	if err != nil {
		return err
	}
	if counters == nil {
		counters = map[string]int64{}
	}
	if summaries == nil {
		summaries = map[string]Summary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{Counters: counters, Summaries: summaries})
}
