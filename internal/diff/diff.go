// Package diff holds the result of a completed transformation job and decides
// which cells of the transformed preview are highlighted as changed.
//
// Every preview row carries an _orig_idx key set by the backend. Highlighting
// is always resolved against that key, never against a row's display position,
// so it survives any client-side filter, sort or pagination.
package diff

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// OrigIndexKey is the row key holding the stable identity of a row in the
// original dataset.
const OrigIndexKey = "_orig_idx"

// Row is a single preview row as decoded from the backend.
type Row map[string]any

// Marks lists the cells the backend changed.
//
// UpdatedCells is keyed by the decimal _orig_idx (JSON object keys are strings)
// and then by column name. DeletedRowIndices only feeds the summary.
type Marks struct {
	UpdatedCells      map[string]map[string]any `json:"updated_cells"`
	DeletedRowIndices []int                     `json:"deleted_row_indices"`
}

// ChangeEntry describes one operation the backend applied.
type ChangeEntry struct {
	Operation string `json:"operation"`
	Details   any    `json:"details,omitempty"`
}

// ColumnSummary lists columns added or removed by the pipeline.
type ColumnSummary struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// TransformResult is the payload of a completed job. Treat it as immutable.
type TransformResult struct {
	OriginalRowCount    int           `json:"original_row_count"`
	TransformedRowCount int           `json:"transformed_row_count"`
	Preview             []Row         `json:"preview"`
	OriginalPreview     []Row         `json:"original_preview"`
	DiffMarks           Marks         `json:"diff_marks"`
	ChangeMetadata      []ChangeEntry `json:"change_metadata"`
	ColumnSummary       ColumnSummary `json:"column_summary"`
}

// ColumnFilter restricts highlighting to a set of columns. A nil filter
// allows every column.
type ColumnFilter map[string]struct{}

// NewColumnFilter builds a filter from column names. With no names it returns
// nil, which allows everything.
func NewColumnFilter(cols ...string) ColumnFilter {
	if len(cols) == 0 {
		return nil
	}
	f := make(ColumnFilter, len(cols))
	for _, c := range cols {
		f[c] = struct{}{}
	}
	return f
}

// Allows reports whether col passes the filter.
func (f ColumnFilter) Allows(col string) bool {
	if f == nil {
		return true
	}
	_, ok := f[col]
	return ok
}

// OrigIndex returns the row's _orig_idx. JSON decoding yields float64 or
// json.Number; hand-built rows may use int types. Non-integral or negative
// values are rejected.
func OrigIndex(row Row) (int, bool) {
	v, ok := row[OrigIndexKey]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case int32:
		return int(n), n >= 0
	case int64:
		return int(n), n >= 0
	case float64:
		if n < 0 || n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil || i < 0 {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// IsHighlighted reports whether the cell (row, col) was changed by the
// pipeline and passes the column filter. Rows without _orig_idx are never
// highlighted.
func IsHighlighted(row Row, col string, marks Marks, filter ColumnFilter) bool {
	idx, ok := OrigIndex(row)
	if !ok {
		return false
	}
	cols, ok := marks.UpdatedCells[strconv.Itoa(idx)]
	if !ok {
		return false
	}
	return truthy(cols[col]) && filter.Allows(col)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case json.Number:
		return t.String() != "0" && t.String() != ""
	}
	return true
}

// IndexByOrig maps _orig_idx to row. Rows without an index are skipped.
func IndexByOrig(rows []Row) map[int]Row {
	out := make(map[int]Row, len(rows))
	for _, r := range rows {
		if idx, ok := OrigIndex(r); ok {
			out[idx] = r
		}
	}
	return out
}

// Summary aggregates a result for display.
type Summary struct {
	UpdatedCells    int      `json:"updated_cells"`
	ChangedColumns  []string `json:"changed_columns"`
	DeletedRows     int      `json:"deleted_rows"`
	RowDelta        int      `json:"row_delta"`
	ColumnsAdded    []string `json:"columns_added"`
	ColumnsRemoved  []string `json:"columns_removed"`
	OperationsCount int      `json:"operations_count"`
}

// Summarize counts changed cells and columns. Deleted rows come only from
// DeletedRowIndices.
func Summarize(res TransformResult) Summary {
	changed := make(map[string]struct{})
	count := 0
	for _, cols := range res.DiffMarks.UpdatedCells {
		for col, v := range cols {
			if !truthy(v) {
				continue
			}
			count++
			changed[col] = struct{}{}
		}
	}

	names := make([]string, 0, len(changed))
	for c := range changed {
		names = append(names, c)
	}
	sort.Strings(names)

	return Summary{
		UpdatedCells:    count,
		ChangedColumns:  names,
		DeletedRows:     len(res.DiffMarks.DeletedRowIndices),
		RowDelta:        res.TransformedRowCount - res.OriginalRowCount,
		ColumnsAdded:    append([]string(nil), res.ColumnSummary.Added...),
		ColumnsRemoved:  append([]string(nil), res.ColumnSummary.Removed...),
		OperationsCount: len(res.ChangeMetadata),
	}
}
