// Package export writes enriched products as a CSV table.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/merchant-catalog-export/pkg/catalog"
)

// ErrNoProducts is returned by WriteFile when there is nothing to write.
var ErrNoProducts = errors.New("no products to export")

// CSVWriter writes products as CSV rows. The header is the key list of the
// first product written; later products are projected onto it.
type CSVWriter struct {
	w      *csv.Writer
	header []string
	rows   int
}

// NewCSVWriter creates a writer on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Header returns the column names, nil before the first Write.
func (cw *CSVWriter) Header() []string {
	return cw.header
}

// Rows returns the number of data rows written.
func (cw *CSVWriter) Rows() int {
	return cw.rows
}

// Write appends one product. Keys not in the header are dropped, header keys
// the product lacks become empty cells.
func (cw *CSVWriter) Write(p *catalog.Product) error {
	if cw.header == nil {
		cw.header = append([]string{}, p.Keys()...)
		if err := cw.w.Write(cw.header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := make([]string, len(cw.header))
	for i, key := range cw.header {
		row[i] = p.Text(key)
	}

	if err := cw.w.Write(row); err != nil {
		return fmt.Errorf("write row %d: %w", cw.rows+1, err)
	}
	cw.rows++
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}

// WriteFile writes products to path. The file is written next to its final
// name and renamed into place, so a failed export never leaves a truncated
// table behind.
func WriteFile(path string, products []*catalog.Product) error {
	if len(products) == 0 {
		return ErrNoProducts
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	cw := NewCSVWriter(tmp)
	for _, p := range products {
		if err := cw.Write(p); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := cw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
