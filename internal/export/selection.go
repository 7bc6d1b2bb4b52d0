package export

import (
	"fmt"
	"strings"
)

// Selection picks which exports a run performs.
type Selection struct {
	RawCSV     bool
	RawParquet bool
	Surveys    bool
	Fitbit     bool
}

// DefaultSelection exports processed surveys only.
const DefaultSelection = "surveys"

// ParseSelection reads a comma separated list of export names:
// raw-csv, raw-parquet, surveys, fitbit, or all.
func ParseSelection(s string) (Selection, error) {
	var sel Selection
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "raw-csv":
			sel.RawCSV = true
		case "raw-parquet":
			sel.RawParquet = true
		case "surveys":
			sel.Surveys = true
		case "fitbit":
			sel.Fitbit = true
		case "all":
			sel = Selection{RawCSV: true, RawParquet: true, Surveys: true, Fitbit: true}
		default:
			return Selection{}, fmt.Errorf("unknown export %q (must be raw-csv, raw-parquet, surveys, fitbit, or all)", part)
		}
	}
	if sel.Empty() {
		return Selection{}, fmt.Errorf("no exports selected")
	}
	return sel, nil
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return !s.RawCSV && !s.RawParquet && !s.Surveys && !s.Fitbit
}

// NeedsTables reports whether the selection exports raw tables.
func (s Selection) NeedsTables() bool {
	return s.RawCSV || s.RawParquet
}

// String lists the selected exports in run order.
func (s Selection) String() string {
	var parts []string
	if s.RawCSV {
		parts = append(parts, "raw-csv")
	}
	if s.RawParquet {
		parts = append(parts, "raw-parquet")
	}
	if s.Surveys {
		parts = append(parts, "surveys")
	}
	if s.Fitbit {
		parts = append(parts, "fitbit")
	}
	return strings.Join(parts, ",")
}
