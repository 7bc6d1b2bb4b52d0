// Package export drives the query catalog and writes each report under the
// output root.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nextgensh/mdh-export/internal/catalog"
	"github.com/nextgensh/mdh-export/internal/output"
	"github.com/nextgensh/mdh-export/internal/store"
	"github.com/nextgensh/mdh-export/internal/warehouse"
)

// Querier runs SQL against the study schema. *warehouse.Session implements it.
type Querier interface {
	Query(ctx context.Context, query string, params ...string) (*warehouse.Result, error)
	Stream(ctx context.Context, w warehouse.RowWriter, query string, params ...string) (int64, error)
}

// Ledger records runs and their outcomes. *store.Store implements it.
type Ledger interface {
	CreateRun(id, outputRoot, exports string) error
	FinishRun(id, status string) error
	RecordExport(e *store.Export) error
}

// Options configures an Orchestrator.
type Options struct {
	Root   string
	Layout output.Layout
	Ledger Ledger // optional
	Logger *slog.Logger
}

// Orchestrator owns the query session for the length of a run and writes
// one file per report. Exports run one at a time.
type Orchestrator struct {
	q      Querier
	root   string
	layout output.Layout
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

// New creates an orchestrator writing under opts.Root.
func New(q Querier, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		q:      q,
		root:   opts.Root,
		layout: opts.Layout,
		ledger: opts.Ledger,
		logger: logger,
		now:    time.Now,
	}
}

// Run performs the selected exports in fixed order: raw CSV tables, raw
// Parquet tables, processed surveys, Fitbit summaries. Failures of single
// files are recorded in the report and do not stop the run; the returned
// error is non-nil only when a run-wide step failed or ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context, sel Selection) (*Report, error) {
	rep := &Report{
		RunID:      uuid.NewString(),
		OutputRoot: o.root,
		Exports:    sel.String(),
		StartedAt:  o.now(),
	}

	o.logger.Info("export started", "run_id", rep.RunID, "exports", rep.Exports, "output", o.root)
	if o.ledger != nil {
		if err := o.ledger.CreateRun(rep.RunID, o.root, rep.Exports); err != nil {
			o.logger.Warn("could not record run", "error", err)
		}
	}

	err := o.run(ctx, sel, rep)
	rep.FinishedAt = o.now()

	status := store.StatusCompleted
	switch {
	case ctx.Err() != nil:
		status = store.StatusInterrupted
	case err != nil || rep.Failed > 0:
		status = store.StatusFailed
	}
	if o.ledger != nil {
		if err := o.ledger.FinishRun(rep.RunID, status); err != nil {
			o.logger.Warn("could not record run status", "error", err)
		}
	}

	o.logger.Info("export finished",
		"run_id", rep.RunID,
		"status", status,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
	)
	return rep, err
}

func (o *Orchestrator) run(ctx context.Context, sel Selection, rep *Report) error {
	var tables []string
	if sel.NeedsTables() {
		var err error
		tables, err = o.Tables(ctx)
		if err != nil {
			return err
		}
	}

	if sel.RawCSV {
		if err := o.ExportTablesCSV(ctx, tables, rep); err != nil {
			return err
		}
	}
	if sel.RawParquet {
		if err := o.ExportTablesParquet(ctx, tables, rep); err != nil {
			return err
		}
	}
	if sel.Surveys {
		if err := o.ExportSurveys(ctx, rep); err != nil {
			return err
		}
	}
	if sel.Fitbit {
		if err := o.ExportFitbitSummary(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}

// Tables lists every table in the study schema.
func (o *Orchestrator) Tables(ctx context.Context) ([]string, error) {
	q := catalog.ShowTables()
	res, err := o.q.Query(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	if len(res.Columns) == 1 {
		return res.Values(res.Columns[0].Name)
	}
	return res.Values("tab_name")
}

// Surveys lists the surveys that have results.
func (o *Orchestrator) Surveys(ctx context.Context) ([]catalog.Survey, error) {
	q := catalog.SurveyDiscovery()
	res, err := o.q.Query(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("discovering surveys: %w", err)
	}

	names, err := res.Values("surveyname")
	if err != nil {
		return nil, fmt.Errorf("discovering surveys: %w", err)
	}
	keys, err := res.Values("surveykey")
	if err != nil {
		return nil, fmt.Errorf("discovering surveys: %w", err)
	}

	surveys := make([]catalog.Survey, len(names))
	for i := range names {
		surveys[i] = catalog.Survey{Name: names[i], Key: keys[i]}
	}
	return surveys, nil
}

// ExportSurveys writes SurveyProcessed/<survey name>.csv for every survey
// returned by discovery. A survey whose query or write fails is recorded and
// skipped.
func (o *Orchestrator) ExportSurveys(ctx context.Context, rep *Report) error {
	surveys, err := o.Surveys(ctx)
	if err != nil {
		return err
	}
	o.logger.Info("surveys discovered", "count", len(surveys))

	dir := o.layout.Path(o.root, output.SurveyProcessed)
	names := output.NewNamer()
	for _, s := range surveys {
		if err := ctx.Err(); err != nil {
			return err
		}
		stem := names.Unique(output.SanitizeName(s.Name))
		path := filepath.Join(dir, stem+".csv")
		o.record(rep, o.write(ctx, output.SurveyProcessed, s.Name, path, catalog.SurveyExtract(s.Key), csvSink, false))
	}
	return nil
}

// ExportFitbitSummary writes the four Fitbit summaries to FitbitSummary/.
func (o *Orchestrator) ExportFitbitSummary(ctx context.Context, rep *Report) error {
	dir := o.layout.Path(o.root, output.FitbitSummary)
	for _, s := range catalog.FitbitSummaries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, s.File+".csv")
		o.record(rep, o.write(ctx, output.FitbitSummary, s.File, path, s.Query, csvSink, false))
	}
	return nil
}

// ExportTablesCSV writes RawCSv/table_<name>.csv for each table.
func (o *Orchestrator) ExportTablesCSV(ctx context.Context, tables []string, rep *Report) error {
	return o.exportTables(ctx, tables, output.RawCSV, ".csv", csvSink, rep)
}

// ExportTablesParquet writes RawParquet/table_<name>.parquet for each table.
func (o *Orchestrator) ExportTablesParquet(ctx context.Context, tables []string, rep *Report) error {
	return o.exportTables(ctx, tables, output.RawParquet, ".parquet", parquetSink, rep)
}

func (o *Orchestrator) exportTables(ctx context.Context, tables []string, c output.Category, ext string, open openSink, rep *Report) error {
	dir := o.layout.Path(o.root, c)
	names := output.NewNamer()
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		stem := names.Unique(output.SanitizeName("table_" + table))
		path := filepath.Join(dir, stem+ext)
		o.record(rep, o.write(ctx, c, table, path, catalog.SelectAll(table), open, true))
	}
	return nil
}

type openSink func(path string) (output.Sink, error)

func csvSink(path string) (output.Sink, error)     { return output.CreateCSV(path) }
func parquetSink(path string) (output.Sink, error) { return output.CreateParquet(path) }

// write runs q and stores its result at path. Streamed queries are copied
// from the result file without being held in memory.
func (o *Orchestrator) write(ctx context.Context, c output.Category, name, path string, q catalog.Query, open openSink, stream bool) Outcome {
	start := o.now()
	out := Outcome{Category: c, Name: name, Path: path}

	rows, err := o.fill(ctx, path, q, open, stream)
	out.Rows = rows
	out.DurationMs = o.now().Sub(start).Milliseconds()
	if err != nil {
		out.Error = err.Error()
		out.Path = ""
		o.logger.Error("export failed", "category", c, "name", name, "query", q.Name, "error", err)
		return out
	}

	o.logger.Info("exported", "category", c, "name", name, "query", q.Name, "path", path, "rows", rows)
	return out
}

func (o *Orchestrator) fill(ctx context.Context, path string, q catalog.Query, open openSink, stream bool) (int64, error) {
	var res *warehouse.Result
	if !stream {
		// Query before touching the file so a failed query leaves any
		// previous export in place.
		var err error
		res, err = o.q.Query(ctx, q.SQL, q.Params...)
		if err != nil {
			return 0, err
		}
	}

	sink, err := open(path)
	if err != nil {
		return 0, err
	}

	var rows int64
	if stream {
		rows, err = o.q.Stream(ctx, sink, q.SQL, q.Params...)
	} else {
		rows, err = res.Emit(sink)
	}
	if err != nil {
		if derr := sink.Discard(); derr != nil {
			err = errors.Join(err, derr)
		}
		return rows, err
	}

	if err := sink.Close(); err != nil {
		_ = sink.Discard()
		return rows, err
	}
	return rows, nil
}

func (o *Orchestrator) record(rep *Report, out Outcome) {
	rep.add(out)
	if o.ledger == nil {
		return
	}
	if err := o.ledger.RecordExport(&store.Export{
		RunID:      rep.RunID,
		Category:   string(out.Category),
		Name:       out.Name,
		Path:       out.Path,
		Rows:       out.Rows,
		Error:      out.Error,
		DurationMs: out.DurationMs,
	}); err != nil {
		o.logger.Warn("could not record export", "name", out.Name, "error", err)
	}
}
