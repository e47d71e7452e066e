package table

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/prepflow/internal/diff"
)

func makeRows(n int) []diff.Row {
	rows := make([]diff.Row, n)
	for i := range rows {
		rows[i] = diff.Row{diff.OrigIndexKey: float64(i), "n": float64(i)}
	}
	return rows
}

func origOrder(rows []diff.Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i], _ = diff.OrigIndex(r)
	}
	return out
}

func TestPaginate_25RowsPageSize10(t *testing.T) {
	tests := []struct {
		page                               int
		wantIndex, wantStart, wantEnd      int
		canFirst, canPrev, canNext, canLast bool
	}{
		{page: 0, wantIndex: 0, wantStart: 0, wantEnd: 10, canNext: true, canLast: true},
		{page: 1, wantIndex: 1, wantStart: 10, wantEnd: 20, canFirst: true, canPrev: true, canNext: true, canLast: true},
		{page: 2, wantIndex: 2, wantStart: 20, wantEnd: 25, canFirst: true, canPrev: true},
		{page: 9, wantIndex: 2, wantStart: 20, wantEnd: 25, canFirst: true, canPrev: true},
		{page: -3, wantIndex: 0, wantStart: 0, wantEnd: 10, canNext: true, canLast: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			p := Paginate(25, 10, tt.page)
			assert.Equal(t, 3, p.TotalPages)
			assert.Equal(t, tt.wantIndex, p.Index)
			assert.Equal(t, tt.wantStart, p.Start)
			assert.Equal(t, tt.wantEnd, p.End)
			assert.Equal(t, tt.canFirst, p.CanFirst)
			assert.Equal(t, tt.canPrev, p.CanPrev)
			assert.Equal(t, tt.canNext, p.CanNext)
			assert.Equal(t, tt.canLast, p.CanLast)
		})
	}
}

func TestPaginate_Empty(t *testing.T) {
	p := Paginate(0, 10, 4)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 0, p.Index)
	assert.False(t, p.CanFirst || p.CanPrev || p.CanNext || p.CanLast)
	assert.Empty(t, p.Slice(nil))
}

func TestToggleSort(t *testing.T) {
	s := ToggleSort(SortState{}, "age")
	assert.Equal(t, SortState{Column: "age"}, s)

	s = ToggleSort(s, "age")
	assert.Equal(t, SortState{Column: "age", Desc: true}, s)

	s = ToggleSort(s, "name")
	assert.Equal(t, SortState{Column: "name"}, s)
}

func TestSort_RoundTrip(t *testing.T) {
	rows := []diff.Row{
		{diff.OrigIndexKey: 0, "v": float64(3)},
		{diff.OrigIndexKey: 1, "v": float64(1)},
		{diff.OrigIndexKey: 2, "v": nil},
		{diff.OrigIndexKey: 3, "v": float64(3)},
		{diff.OrigIndexKey: 4, "v": float64(2)},
	}

	var s SortState
	s = ToggleSort(s, "v")
	asc := Sort(rows, s)
	assert.Equal(t, []int{2, 1, 4, 0, 3}, origOrder(asc))

	s = ToggleSort(s, "v")
	desc := Sort(rows, s)
	assert.Equal(t, []int{0, 3, 4, 1, 2}, origOrder(desc))

	s = ToggleSort(s, "v")
	assert.Equal(t, origOrder(asc), origOrder(Sort(rows, s)))

	// Input untouched.
	assert.Equal(t, []int{0, 1, 2, 3, 4}, origOrder(rows))
}

func TestSort_MixedColumn(t *testing.T) {
	rows := []diff.Row{
		{diff.OrigIndexKey: 0, "v": float64(10)},
		{diff.OrigIndexKey: 1, "v": "5x"},
		{diff.OrigIndexKey: 2, "v": float64(9)},
		{diff.OrigIndexKey: 3, "v": "N/A"},
		{diff.OrigIndexKey: 4, "v": nil},
		{diff.OrigIndexKey: 5, "v": true},
	}

	asc := Sort(rows, SortState{Column: "v"})
	assert.Equal(t, []int{4, 2, 0, 5, 1, 3}, origOrder(asc))

	desc := Sort(rows, SortState{Column: "v", Desc: true})
	assert.Equal(t, []int{3, 1, 5, 0, 2, 4}, origOrder(desc))

	s := ToggleSort(ToggleSort(ToggleSort(SortState{}, "v"), "v"), "v")
	assert.Equal(t, origOrder(asc), origOrder(Sort(rows, s)))
}

func TestCompare_Transitive(t *testing.T) {
	values := []any{nil, float64(9), float64(10), "10", "5x", "N/A", true, false, 3}
	for _, a := range values {
		for _, b := range values {
			assert.Equal(t, -Compare(b, a), Compare(a, b), "antisymmetry %v %v", a, b)
			for _, c := range values {
				if Compare(a, b) < 0 && Compare(b, c) < 0 {
					assert.Negative(t, Compare(a, c), "%v < %v < %v", a, b, c)
				}
			}
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"nil first", nil, "a", -1},
		{"nil equal", nil, nil, 0},
		{"numeric not lexical", float64(10), float64(9), 1},
		{"numeric strings", "10", "9", 1},
		{"mixed numeric", 2, "2.0", 0},
		{"bools", false, true, -1},
		{"strings", "apple", "banana", -1},
		{"number before text", float64(10), "5x", -1},
		{"text after number", "5x", float64(9), 1},
		{"number before bool", float64(1), true, -1},
		{"bool before text", false, "N/A", -1},
		{"nil before number", nil, float64(-1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestFilter(t *testing.T) {
	rows := []diff.Row{
		{diff.OrigIndexKey: 0, "city": "Oslo", "kind": "A"},
		{diff.OrigIndexKey: 1, "city": "Bergen", "kind": "B"},
		{diff.OrigIndexKey: 2, "city": "oslo east", "kind": "B"},
		{diff.OrigIndexKey: 3, "city": nil, "kind": "B"},
	}

	assert.Equal(t, []int{0, 2}, origOrder(Filter(rows, map[string]string{"city": "OSLO"})))
	assert.Equal(t, []int{2}, origOrder(Filter(rows, map[string]string{"city": "oslo", "kind": "b"})))
	assert.Len(t, Filter(rows, map[string]string{"city": "  "}), 4)
}

func TestEngine_FilterResetsPage(t *testing.T) {
	e := NewEngine(10)
	e.Load(makeRows(25), []string{"n"})

	e.SetPage(2)
	assert.Equal(t, 2, e.View().Index)

	e.SetFilter("n", "1")
	v := e.View()
	assert.Equal(t, 0, v.Index)
	// 1, 10..19, 21
	assert.Equal(t, 12, v.TotalRows)
}

func TestEngine_ViewKeepsIdentity(t *testing.T) {
	e := NewEngine(10)
	e.Load(makeRows(25), nil)
	e.ToggleSort("n")
	e.ToggleSort("n")
	e.SetPage(1)

	v := e.View()
	require.Len(t, v.Rows, 10)
	assert.Equal(t, []int{14, 13, 12, 11, 10, 9, 8, 7, 6, 5}, origOrder(v.Rows))
	assert.Equal(t, []string{"n"}, v.Columns)
}

func TestEngine_SetSort(t *testing.T) {
	e := NewEngine(10)
	e.Load(makeRows(3), nil)
	e.SetSort(SortState{Column: "n", Desc: true})

	v := e.View()
	assert.Equal(t, []int{2, 1, 0}, origOrder(v.Rows))
	assert.Equal(t, SortState{Column: "n", Desc: true}, v.Sort)
}

func TestEngine_ClampsStoredPage(t *testing.T) {
	e := NewEngine(10)
	e.Load(makeRows(5), nil)
	e.SetPage(7)
	assert.Equal(t, 0, e.View().Index)
	assert.False(t, e.View().CanNext)
}

func TestEncodeCSV(t *testing.T) {
	rows := []diff.Row{{"id": 1, "name": "a,b"}}
	got, err := EncodeCSV(rows, nil)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,\"a,b\"", string(got))
}

func TestEncodeCSV_ColumnsAndEscaping(t *testing.T) {
	rows := []diff.Row{
		{diff.OrigIndexKey: 0, "b": `say "hi"`, "a": nil, "c": true},
		{diff.OrigIndexKey: 1, "b": "<tag>", "c": float64(2.5)},
	}
	got, err := EncodeCSV(rows, []string{"c", "b", "a", diff.OrigIndexKey})
	require.NoError(t, err)
	assert.Equal(t, "c,b,a\ntrue,\"say \\\"hi\\\"\",\n2.5,\"<tag>\",", string(got))
}

func TestExportCSV(t *testing.T) {
	var gotName string
	var gotData []byte
	exp := ExporterFunc(func(_ context.Context, name string, data []byte) error {
		gotName, gotData = name, data
		return nil
	})

	err := ExportCSV(context.Background(), []diff.Row{{"id": 1}}, nil, "out.csv", exp)
	require.NoError(t, err)
	assert.Equal(t, "out.csv", gotName)
	assert.Equal(t, "id\n1", string(gotData))

	assert.ErrorIs(t, ExportCSV(context.Background(), nil, nil, "x.csv", exp), ErrNoRows)
	assert.ErrorIs(t, ExportCSV(context.Background(), []diff.Row{{"id": 1}}, nil, "x.csv", nil), ErrNoExporter)

	boom := errors.New("disk full")
	failing := ExporterFunc(func(context.Context, string, []byte) error { return boom })
	assert.ErrorIs(t, ExportCSV(context.Background(), []diff.Row{{"id": 1}}, nil, "x.csv", failing), boom)
}

func TestSave_Delegates(t *testing.T) {
	var saved []diff.Row
	p := PersisterFunc(func(_ context.Context, rows []diff.Row) error {
		saved = rows
		return nil
	})

	rows := makeRows(3)
	require.NoError(t, Save(context.Background(), rows, p))
	assert.Len(t, saved, 3)
	assert.ErrorIs(t, Save(context.Background(), nil, p), ErrNoRows)
}

func TestFileExporter(t *testing.T) {
	dir := t.TempDir()
	exp := FileExporter{Dir: filepath.Join(dir, "exports")}

	require.NoError(t, exp.Export(context.Background(), "../escape.csv", []byte("id\n1")))
	data, err := os.ReadFile(filepath.Join(dir, "exports", "escape.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id\n1", string(data))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "sales_transformed.csv", ExportFilename("data/sales.csv"))
	assert.Equal(t, "dataset_transformed.csv", ExportFilename(""))
}
