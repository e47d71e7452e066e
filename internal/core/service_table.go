package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/logging"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// DiffPage is one page of the transformed table with per-cell highlighting.
type DiffPage struct {
	table.Page
	Mode    string        `json:"mode"`
	Cells   [][]diff.Cell `json:"cells"`
	Summary diff.Summary  `json:"summary"`
}

// TableQuery changes the view before a page is rendered. Nil fields are
// left as they are.
type TableQuery struct {
	Filters  map[string]string
	Page     *int
	PageSize *int
}

// TableView applies q and renders the current page. highlight restricts
// highlighting to those columns; empty means all.
func (s *Service) TableView(ctx context.Context, q TableQuery, mode diff.Mode, highlight ...string) (DiffPage, error) {
	s.mu.RLock()
	res := s.result
	if res == nil {
		s.mu.RUnlock()
		return DiffPage{}, ErrNoResult
	}

	changed := false
	for col, text := range q.Filters {
		s.table.SetFilter(col, text)
		changed = true
	}
	if q.PageSize != nil {
		s.table.SetPageSize(*q.PageSize)
		changed = true
	}
	if q.Page != nil {
		s.table.SetPage(*q.Page)
		changed = true
	}

	page := s.table.View()
	s.mu.RUnlock()

	if changed {
		s.persist(ctx)
	}

	filter := diff.NewColumnFilter(highlight...)
	var originals map[int]diff.Row
	if mode == diff.ModeCompare {
		originals = diff.IndexByOrig(res.OriginalPreview)
	}

	cells := make([][]diff.Cell, len(page.Rows))
	for i, row := range page.Rows {
		cells[i] = make([]diff.Cell, len(page.Columns))
		for j, col := range page.Columns {
			cells[i][j] = diff.CellView(row, col, res.DiffMarks, mode, filter, originals)
		}
	}

	return DiffPage{
		Page:    page,
		Mode:    mode.String(),
		Cells:   cells,
		Summary: diff.Summarize(*res),
	}, nil
}

// ClearFilters removes every table filter.
func (s *Service) ClearFilters(ctx context.Context) error {
	if s.Result() == nil {
		return ErrNoResult
	}
	s.table.ClearFilters()
	s.persist(ctx)
	return nil
}

// ToggleSort cycles the sort on col.
func (s *Service) ToggleSort(ctx context.Context, col string) (table.SortState, error) {
	if s.Result() == nil {
		return table.SortState{}, ErrNoResult
	}
	st := s.table.ToggleSort(col)
	s.persist(ctx)
	return st, nil
}

// ExportData encodes the filtered and sorted table as CSV and returns it
// with its download file name.
func (s *Service) ExportData() (string, []byte, error) {
	if s.Result() == nil {
		return "", nil, ErrNoResult
	}
	rows := s.table.Rows()
	if len(rows) == 0 {
		return "", nil, table.ErrNoRows
	}
	data, err := table.EncodeCSV(rows, s.table.Columns())
	if err != nil {
		return "", nil, fmt.Errorf("encode csv: %w", err)
	}
	return table.ExportFilename(s.Dataset()), data, nil
}

// Export hands the CSV to exp, or to the configured exporter when exp is
// nil.
func (s *Service) Export(ctx context.Context, exp table.Exporter) (string, error) {
	if s.Result() == nil {
		return "", ErrNoResult
	}
	if exp == nil {
		exp = s.exporter
	}
	name := table.ExportFilename(s.Dataset())
	rows := s.table.Rows()
	if err := table.ExportCSV(ctx, rows, s.table.Columns(), name, exp); err != nil {
		return "", err
	}
	logging.FromContext(ctx).Info("table exported", "file", name, "rows", len(rows))
	return name, nil
}

// Save persists the filtered and sorted table through the configured
// persister.
func (s *Service) Save(ctx context.Context) (int, error) {
	if s.Result() == nil {
		return 0, ErrNoResult
	}
	rows := s.table.Rows()
	if err := table.Save(ctx, rows, s.persister); err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("table saved", "dataset", s.Dataset(), "rows", len(rows))
	return len(rows), nil
}
