package output

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
)

const parquetBatchSize = 1024

// ParquetFile writes rows to a Parquet file in which every column is an
// optional UTF-8 string. The schema is fixed by WriteHeader.
type ParquetFile struct {
	path   string
	file   *os.File
	writer *parquet.Writer
	// order[i] is the leaf column index of the i-th result column; parquet
	// groups sort their fields by name.
	order []int
	batch []parquet.Row
}

// CreateParquet creates or truncates the file at path.
func CreateParquet(path string) (*ParquetFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &ParquetFile{path: path, file: f}, nil
}

// Path returns the file location.
func (p *ParquetFile) Path() string { return p.path }

func (p *ParquetFile) WriteHeader(columns []string) error {
	if p.writer != nil {
		return errors.New("parquet header already written")
	}
	if len(columns) == 0 {
		return errors.New("parquet output needs at least one column")
	}

	names := uniqueColumns(columns)
	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	leaf := make(map[string]int, len(sorted))
	for i, name := range sorted {
		leaf[name] = i
	}
	p.order = make([]int, len(names))
	for i, name := range names {
		p.order[i] = leaf[name]
	}

	p.writer = parquet.NewWriter(p.file, parquet.NewSchema("row", group))
	return nil
}

func (p *ParquetFile) WriteRow(row []sql.NullString) error {
	if p.writer == nil {
		return errors.New("parquet header not written")
	}

	values := make(parquet.Row, len(p.order))
	for i, col := range p.order {
		var v parquet.Value
		if i < len(row) && row[i].Valid {
			v = parquet.ByteArrayValue([]byte(row[i].String)).Level(0, 1, col)
		} else {
			v = parquet.NullValue().Level(0, 0, col)
		}
		values[col] = v
	}

	p.batch = append(p.batch, values)
	if len(p.batch) >= parquetBatchSize {
		return p.flush()
	}
	return nil
}

func (p *ParquetFile) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	if _, err := p.writer.WriteRows(p.batch); err != nil {
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	p.batch = p.batch[:0]
	return nil
}

// Close writes any buffered rows and the file footer.
func (p *ParquetFile) Close() error {
	if p.writer == nil {
		p.file.Close()
		return fmt.Errorf("closing %s: no header written", p.path)
	}
	if err := p.flush(); err != nil {
		p.file.Close()
		return err
	}
	if err := p.writer.Close(); err != nil {
		p.file.Close()
		return fmt.Errorf("finishing %s: %w", p.path, err)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p.path, err)
	}
	return nil
}

// Discard closes and deletes the file.
func (p *ParquetFile) Discard() error {
	p.file.Close()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// uniqueColumns renames repeated or empty column names so each maps to its
// own parquet field.
func uniqueColumns(columns []string) []string {
	names := make([]string, len(columns))
	namer := &Namer{used: make(map[string]bool)}
	for i, c := range columns {
		if c == "" {
			c = fmt.Sprintf("_col%d", i)
		}
		names[i] = namer.Unique(c)
	}
	return names
}
