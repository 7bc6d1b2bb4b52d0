// Package metrics summarizes recorded export runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/nextgensh/mdh-export/internal/store"
)

// Collector provides a query facade over the store for one run.
type Collector struct {
	store *store.Store
	runID string
}

// NewCollector creates a metrics collector for the given run.
func NewCollector(s *store.Store, runID string) *Collector {
	return &Collector{store: s, runID: runID}
}

// Totals returns aggregate counts for the run.
func (c *Collector) Totals() (*store.Totals, error) {
	return c.store.RunTotals(c.runID)
}

// Failures returns the exports that did not produce a file.
func (c *Collector) Failures() ([]*store.Export, error) {
	exports, err := c.store.ListExports(c.runID)
	if err != nil {
		return nil, err
	}
	var failed []*store.Export
	for _, e := range exports {
		if e.Failed() {
			failed = append(failed, e)
		}
	}
	return failed, nil
}

// SuccessRate returns the fraction of exports that succeeded, or 0 for a run
// with no exports.
func (c *Collector) SuccessRate() (float64, error) {
	t, err := c.Totals()
	if err != nil {
		return 0, err
	}
	if t.Exports == 0 {
		return 0, nil
	}
	return float64(t.Exports-t.Failed) / float64(t.Exports), nil
}

// Summary returns a formatted metrics summary.
func (c *Collector) Summary() (string, error) {
	t, err := c.Totals()
	if err != nil {
		return "", err
	}
	rate, err := c.SuccessRate()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"Files: %d | Failed: %d | Rows: %d | Query time: %s | Success: %.1f%%",
		t.Exports, t.Failed, t.Rows,
		(time.Duration(t.DurationMs) * time.Millisecond).String(), rate*100,
	), nil
}
