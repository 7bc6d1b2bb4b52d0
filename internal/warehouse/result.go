package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
)

// Column is a named, typed result column.
type Column struct {
	Name string
	Type string
}

// Result is a fully materialized result set. A cell is invalid when the
// engine returned NULL.
type Result struct {
	Columns []Column
	Rows    [][]sql.NullString
}

// RowWriter receives a result one row at a time. Implementations must not
// retain row after WriteRow returns.
type RowWriter interface {
	WriteHeader(columns []string) error
	WriteRow(row []sql.NullString) error
}

// ColumnNames returns the column names in result order.
func (r *Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Values returns every value of the named column. NULLs become empty strings.
func (r *Result) Values(name string) ([]string, error) {
	idx := -1
	for i, c := range r.Columns {
		if c.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not in result", name)
	}

	values := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx < len(row) {
			values = append(values, row[idx].String)
		} else {
			values = append(values, "")
		}
	}
	return values, nil
}

// Emit writes the header and every row to w and returns the row count.
func (r *Result) Emit(w RowWriter) (int64, error) {
	if err := w.WriteHeader(r.ColumnNames()); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range r.Rows {
		if err := w.WriteRow(row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Query runs query and pages the whole result into memory.
func (s *Session) Query(ctx context.Context, query string, params ...string) (*Result, error) {
	qe, err := s.execute(ctx, query, params)
	if err != nil {
		return nil, err
	}
	id := aws.StringValue(qe.QueryExecutionId)

	// Only DML results repeat the column names as their first row.
	skipHeader := aws.StringValue(qe.StatementType) == athena.StatementTypeDml

	res := &Result{}
	first := true
	err = s.api.GetQueryResultsPagesWithContext(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(id),
		MaxResults:       aws.Int64(s.opts.PageSize),
	}, func(page *athena.GetQueryResultsOutput, lastPage bool) bool {
		if page.ResultSet == nil {
			return true
		}
		rows := page.ResultSet.Rows
		if first {
			res.Columns = columnsOf(page.ResultSet.ResultSetMetadata)
			if skipHeader && len(rows) > 0 {
				rows = rows[1:]
			}
			first = false
		}
		for _, row := range rows {
			res.Rows = append(res.Rows, cellsOf(row))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("fetching results of query %s: %w", id, err)
	}

	s.logger.Debug("fetched results", "query_id", id, "rows", len(res.Rows))
	return res, nil
}

func columnsOf(meta *athena.ResultSetMetadata) []Column {
	if meta == nil {
		return nil
	}
	cols := make([]Column, len(meta.ColumnInfo))
	for i, info := range meta.ColumnInfo {
		cols[i] = Column{
			Name: aws.StringValue(info.Name),
			Type: aws.StringValue(info.Type),
		}
	}
	return cols
}

func cellsOf(row *athena.Row) []sql.NullString {
	cells := make([]sql.NullString, len(row.Data))
	for i, d := range row.Data {
		if d != nil && d.VarCharValue != nil {
			cells[i] = sql.NullString{String: *d.VarCharValue, Valid: true}
		}
	}
	return cells
}
