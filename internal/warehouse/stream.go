package warehouse

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Stream runs query and copies its result into w row by row, reading the
// CSV file the service leaves at the staging location. The result is never
// held in memory. The service quotes every non-NULL value, so an unquoted
// empty cell is NULL and a quoted one ("") is an empty string.
func (s *Session) Stream(ctx context.Context, w RowWriter, query string, params ...string) (int64, error) {
	if s.objects == nil {
		return 0, errors.New("streaming requires an object store client")
	}

	qe, err := s.execute(ctx, query, params)
	if err != nil {
		return 0, err
	}
	id := aws.StringValue(qe.QueryExecutionId)

	if qe.ResultConfiguration == nil || qe.ResultConfiguration.OutputLocation == nil {
		return 0, fmt.Errorf("query %s has no result location", id)
	}
	location := aws.StringValue(qe.ResultConfiguration.OutputLocation)
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return 0, err
	}

	obj, err := s.objects.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("downloading %s: %w", location, err)
	}
	defer obj.Body.Close()

	s.logger.Debug("streaming result", "query_id", id, "location", location)

	n, err := copyCSV(obj.Body, w)
	if err != nil {
		return n, fmt.Errorf("reading %s: %w", location, err)
	}
	return n, nil
}

func copyCSV(r io.Reader, w RowWriter) (int64, error) {
	raw := newLineTracker(r)
	reader := csv.NewReader(raw)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return 0, errors.New("empty result file")
	}
	if err != nil {
		return 0, err
	}
	if err := w.WriteHeader(append([]string(nil), header...)); err != nil {
		return 0, err
	}

	width := len(header)
	row := make([]sql.NullString, width)
	var n int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		for i := range row {
			row[i] = sql.NullString{}
			if i >= len(record) {
				continue
			}
			if record[i] != "" || raw.quoted(reader.FieldPos(i)) {
				row[i] = sql.NullString{String: record[i], Valid: true}
			}
		}
		if line, _ := reader.FieldPos(0); line > 0 {
			raw.forget(line)
		}
		if err := w.WriteRow(row); err != nil {
			return n, err
		}
		n++
	}
}

// lineTracker keeps the raw input lines csv.Reader has buffered but not yet
// returned, so the first byte of a field can be looked up by position.
type lineTracker struct {
	r     io.Reader
	lines map[int][]byte
	first int // lowest line still held
	line  int // line currently being read, 1-based
}

func newLineTracker(r io.Reader) *lineTracker {
	return &lineTracker{r: r, lines: make(map[int][]byte), first: 1, line: 1}
}

func (t *lineTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	data := p[:n]
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			t.lines[t.line] = append(t.lines[t.line], data...)
			break
		}
		t.lines[t.line] = append(t.lines[t.line], data[:i+1]...)
		t.line++
		data = data[i+1:]
	}
	return n, err
}

// quoted reports whether the field starting at line and 1-based byte column
// col opens with a quote.
func (t *lineTracker) quoted(line, col int) bool {
	b := t.lines[line]
	return col >= 1 && col <= len(b) && b[col-1] == '"'
}

// forget releases every line before line.
func (t *lineTracker) forget(line int) {
	for ; t.first < line; t.first++ {
		delete(t.lines, t.first)
	}
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs a bucket and key: %s", uri)
	}
	return bucket, key, nil
}
