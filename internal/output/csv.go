package output

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
)

// Sink is a file that receives a result one row at a time. Close must be
// called to flush; Discard removes a partially written file.
type Sink interface {
	WriteHeader(columns []string) error
	WriteRow(row []sql.NullString) error
	Close() error
	Discard() error
}

// CSVFile writes rows as comma separated values with a header line and no
// index column. NULL cells are written as empty fields.
type CSVFile struct {
	path   string
	file   *os.File
	writer *csv.Writer
	record []string
}

// CreateCSV creates or truncates the file at path.
func CreateCSV(path string) (*CSVFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &CSVFile{path: path, file: f, writer: csv.NewWriter(f)}, nil
}

// Path returns the file location.
func (c *CSVFile) Path() string { return c.path }

func (c *CSVFile) WriteHeader(columns []string) error {
	c.record = make([]string, len(columns))
	return c.writer.Write(columns)
}

func (c *CSVFile) WriteRow(row []sql.NullString) error {
	if len(c.record) != len(row) {
		c.record = make([]string, len(row))
	}
	for i, cell := range row {
		c.record[i] = cell.String
	}
	return c.writer.Write(c.record)
}

// Close flushes buffered rows and closes the file.
func (c *CSVFile) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return fmt.Errorf("writing %s: %w", c.path, err)
	}
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.path, err)
	}
	return nil
}

// Discard closes and deletes the file.
func (c *CSVFile) Discard() error {
	c.file.Close()
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
