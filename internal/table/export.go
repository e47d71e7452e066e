package table

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/diff"
)

var (
	// ErrNoRows is returned when there is nothing to export or save.
	ErrNoRows = errors.New("table has no rows")
	// ErrNoExporter is returned when no export or persistence target is configured.
	ErrNoExporter = errors.New("no export target configured")
)

// Exporter stores an encoded CSV file somewhere the user can reach it.
type Exporter interface {
	Export(ctx context.Context, filename string, data []byte) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, filename string, data []byte) error

// Export calls f.
func (f ExporterFunc) Export(ctx context.Context, filename string, data []byte) error {
	return f(ctx, filename, data)
}

// Persister saves the current rows through an external collaborator.
type Persister interface {
	Persist(ctx context.Context, rows []diff.Row) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, rows []diff.Row) error

// Persist calls f.
func (f PersisterFunc) Persist(ctx context.Context, rows []diff.Row) error {
	return f(ctx, rows)
}

// HeaderColumns returns the export header. Known columns win; otherwise the
// first row's keys are used in sorted order. The row identity key is never
// exported.
func HeaderColumns(rows []diff.Row, columns []string) []string {
	src := columns
	if len(src) == 0 && len(rows) > 0 {
		src = make([]string, 0, len(rows[0]))
		for k := range rows[0] {
			src = append(src, k)
		}
		sort.Strings(src)
	}

	out := make([]string, 0, len(src))
	for _, c := range src {
		if c != diff.OrigIndexKey {
			out = append(out, c)
		}
	}
	return out
}

// EncodeCSV renders rows as CSV: the header line, then one line per row with
// every cell JSON encoded, comma-joined and newline-separated. Missing and
// nil cells are empty.
func EncodeCSV(rows []diff.Row, columns []string) ([]byte, error) {
	header := HeaderColumns(rows, columns)

	lines := make([]string, 0, len(rows)+1)
	hcells := make([]string, len(header))
	for i, h := range header {
		if strings.ContainsAny(h, ",\"\n") {
			enc, err := encodeCell(h)
			if err != nil {
				return nil, err
			}
			hcells[i] = enc
			continue
		}
		hcells[i] = h
	}
	lines = append(lines, strings.Join(hcells, ","))

	for n, r := range rows {
		cells := make([]string, len(header))
		for i, col := range header {
			enc, err := encodeCell(r[col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", n, col, err)
			}
			cells[i] = enc
		}
		lines = append(lines, strings.Join(cells, ","))
	}

	return []byte(strings.Join(lines, "\n")), nil
}

func encodeCell(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ExportCSV encodes rows and hands the file to exp.
func ExportCSV(ctx context.Context, rows []diff.Row, columns []string, filename string, exp Exporter) error {
	if exp == nil {
		return ErrNoExporter
	}
	if len(rows) == 0 {
		return ErrNoRows
	}
	data, err := EncodeCSV(rows, columns)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := exp.Export(ctx, filename, data); err != nil {
		return fmt.Errorf("export %s: %w", filename, err)
	}
	return nil
}

// Save hands rows to the persister.
func Save(ctx context.Context, rows []diff.Row, p Persister) error {
	if p == nil {
		return ErrNoExporter
	}
	if len(rows) == 0 {
		return ErrNoRows
	}
	if err := p.Persist(ctx, rows); err != nil {
		return fmt.Errorf("save rows: %w", err)
	}
	return nil
}

// FileExporter writes exports into a directory.
type FileExporter struct {
	Dir string
}

// Export writes data to Dir/filename. Only the base name of filename is used.
func (f FileExporter) Export(_ context.Context, filename string, data []byte) error {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid export filename %q", filename)
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.Dir, name), data, 0o644)
}

// ExportFilename derives the export file name from the dataset name.
func ExportFilename(dataset string) string {
	base := strings.TrimSuffix(filepath.Base(dataset), filepath.Ext(dataset))
	if base == "" || base == "." {
		base = "dataset"
	}
	return base + "_transformed.csv"
}
