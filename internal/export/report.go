package export

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nextgensh/mdh-export/internal/output"
)

// SummaryFile is written at the output root after every run.
const SummaryFile = "export_summary.yaml"

// ErrIncomplete is returned by Report.Err when at least one export failed.
var ErrIncomplete = errors.New("export incomplete")

// Outcome is the result of writing one file.
type Outcome struct {
	Category   output.Category `yaml:"category"`
	Name       string          `yaml:"name"`
	Path       string          `yaml:"path,omitempty"`
	Rows       int64           `yaml:"rows"`
	Error      string          `yaml:"error,omitempty"`
	DurationMs int64           `yaml:"duration_ms"`
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool { return o.Error != "" }

// Report collects the outcomes of one run.
type Report struct {
	RunID      string    `yaml:"run_id"`
	OutputRoot string    `yaml:"output_root"`
	Exports    string    `yaml:"exports"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Succeeded  int       `yaml:"succeeded"`
	Failed     int       `yaml:"failed"`
	Outcomes   []Outcome `yaml:"outcomes"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Failed() {
		r.Failed++
	} else {
		r.Succeeded++
	}
}

// Err returns ErrIncomplete, naming the failure count, if any export failed.
func (r *Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d files failed", ErrIncomplete, r.Failed, len(r.Outcomes))
}

// WriteYAML writes the report to path, replacing any previous summary.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
