// Package table implements the interactive result table: filter, sort and
// paginate over preview rows, plus CSV export.
//
// The pipeline is rows -> filter -> sort -> paginate. Each stage returns new
// slices and never reorders or mutates its input, and rows keep their
// _orig_idx so diff highlighting survives every stage.
package table

import (
	"cmp"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/diff"
)

// Filter keeps rows where every filtered column contains its text,
// case-insensitively, in the stringified cell. Empty texts are ignored.
func Filter(rows []diff.Row, filters map[string]string) []diff.Row {
	active := make(map[string]string, len(filters))
	for col, text := range filters {
		if t := strings.TrimSpace(text); t != "" {
			active[col] = strings.ToLower(t)
		}
	}
	if len(active) == 0 {
		return append([]diff.Row(nil), rows...)
	}

	out := make([]diff.Row, 0, len(rows))
	for _, r := range rows {
		if matches(r, active) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r diff.Row, filters map[string]string) bool {
	for col, text := range filters {
		if !strings.Contains(strings.ToLower(diff.FormatValue(r[col])), text) {
			return false
		}
	}
	return true
}

// SortState is the current sort. An empty Column means unsorted.
type SortState struct {
	Column string `json:"column,omitempty"`
	Desc   bool   `json:"desc"`
}

// ToggleSort returns the next state after a click on col: a new column
// sorts ascending, the same column flips direction.
func ToggleSort(s SortState, col string) SortState {
	if s.Column != col {
		return SortState{Column: col}
	}
	return SortState{Column: col, Desc: !s.Desc}
}

// Sort returns rows ordered by the sort state. The sort is stable so ties
// keep their input order in both directions.
func Sort(rows []diff.Row, s SortState) []diff.Row {
	out := append([]diff.Row(nil), rows...)
	if s.Column == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := Compare(out[i][s.Column], out[j][s.Column])
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Value classes, in sort order. Values of different classes compare by
// class alone so a mixed column still has a total order.
const (
	classNil = iota
	classNumber
	classBool
	classText
)

func classOf(v any) (int, float64) {
	if v == nil {
		return classNil, 0
	}
	if f, ok := toFloat(v); ok {
		return classNumber, f
	}
	if _, ok := v.(bool); ok {
		return classBool, 0
	}
	return classText, 0
}

// Compare orders two cell values: nil, then numbers (numeric strings
// included), then booleans with false first, then everything else by its
// string form.
func Compare(a, b any) int {
	ca, fa := classOf(a)
	cb, fb := classOf(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}

	switch ca {
	case classNil:
		return 0
	case classNumber:
		return cmp.Compare(fa, fb)
	case classBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(diff.FormatValue(a), diff.FormatValue(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

// PageInfo describes one page and its navigation state.
type PageInfo struct {
	Index      int  `json:"index"`
	Size       int  `json:"size"`
	TotalRows  int  `json:"total_rows"`
	TotalPages int  `json:"total_pages"`
	Start      int  `json:"start"`
	End        int  `json:"end"`
	CanFirst   bool `json:"can_first"`
	CanPrev    bool `json:"can_prev"`
	CanNext    bool `json:"can_next"`
	CanLast    bool `json:"can_last"`
}

// Paginate clamps pageIndex to [0, totalPages-1] and computes the row window
// [Start, End). An empty table has a single empty page.
func Paginate(totalRows, pageSize, pageIndex int) PageInfo {
	if pageSize < 1 {
		pageSize = 1
	}
	pages := (totalRows + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	if pageIndex > pages-1 {
		pageIndex = pages - 1
	}

	start := pageIndex * pageSize
	end := start + pageSize
	if end > totalRows {
		end = totalRows
	}
	if start > end {
		start = end
	}

	atFirst := pageIndex == 0
	atLast := pageIndex == pages-1
	return PageInfo{
		Index:      pageIndex,
		Size:       pageSize,
		TotalRows:  totalRows,
		TotalPages: pages,
		Start:      start,
		End:        end,
		CanFirst:   !atFirst,
		CanPrev:    !atFirst,
		CanNext:    !atLast,
		CanLast:    !atLast,
	}
}

// Slice returns the rows in the page window.
func (p PageInfo) Slice(rows []diff.Row) []diff.Row {
	if p.Start >= len(rows) {
		return []diff.Row{}
	}
	end := p.End
	if end > len(rows) {
		end = len(rows)
	}
	return rows[p.Start:end]
}
