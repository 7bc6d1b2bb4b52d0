// Package output manages the export directory tree and the files written into it.
package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// Category is a logical export category with its own subdirectory.
type Category string

const (
	RawCSV          Category = "raw_csv"
	RawParquet      Category = "raw_parquet"
	SurveyProcessed Category = "survey_processed"
	FitbitSummary   Category = "fitbit_summary"
)

// Categories lists every category in creation order.
var Categories = []Category{RawCSV, RawParquet, SurveyProcessed, FitbitSummary}

// Layout maps each category to its subdirectory name. It is a value type;
// copies handed to other packages cannot change the caller's layout.
type Layout struct {
	RawCSV          string
	RawParquet      string
	SurveyProcessed string
	FitbitSummary   string
}

// DefaultLayout returns the directory names used by every study export.
func DefaultLayout() Layout {
	return Layout{
		RawCSV:          "RawCSv",
		RawParquet:      "RawParquet",
		SurveyProcessed: "SurveyProcessed",
		FitbitSummary:   "FitbitSummary",
	}
}

// Dir returns the subdirectory name for c.
func (l Layout) Dir(c Category) string {
	switch c {
	case RawCSV:
		return l.RawCSV
	case RawParquet:
		return l.RawParquet
	case SurveyProcessed:
		return l.SurveyProcessed
	case FitbitSummary:
		return l.FitbitSummary
	default:
		return ""
	}
}

// Path returns the absolute-or-relative directory for c under root.
func (l Layout) Path(root string, c Category) string {
	return filepath.Join(root, l.Dir(c))
}

// Init creates the category subdirectories under root, skipping any that
// already exist. The root itself is only created when createRoot is set.
func Init(root string, layout Layout, createRoot bool) error {
	if createRoot {
		if err := os.Mkdir(root, 0755); err != nil && !os.IsExist(err) {
			return fmt.Errorf("creating output folder: %w", err)
		}
	}

	for _, c := range Categories {
		name := layout.Dir(c)
		if name == "" {
			return fmt.Errorf("no directory configured for %s", c)
		}

		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s exists and is not a directory", path)
			}
			continue
		}
		if err := os.Mkdir(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
