package table

import (
	"strings"
	"sync"

	"github.com/JonMunkholm/prepflow/internal/diff"
)

// DefaultPageSize is used when the engine is created with a non-positive size.
const DefaultPageSize = 10

// Page is one rendered view of the table.
type Page struct {
	Columns []string          `json:"columns"`
	Rows    []diff.Row        `json:"rows"`
	Sort    SortState         `json:"sort"`
	Filters map[string]string `json:"filters,omitempty"`
	PageInfo
}

// Engine holds the view state (filters, sort, page) over a fixed row set.
// It is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	rows     []diff.Row
	columns  []string
	filters  map[string]string
	sort     SortState
	page     int
	pageSize int
}

// NewEngine creates an empty engine.
func NewEngine(pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Engine{
		filters:  make(map[string]string),
		pageSize: pageSize,
	}
}

// Load replaces the rows and resets filters, sort and page. columns fixes
// the display order; when empty it is derived from the first row.
func (e *Engine) Load(rows []diff.Row, columns []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rows = append([]diff.Row(nil), rows...)
	e.columns = HeaderColumns(rows, columns)
	e.filters = make(map[string]string)
	e.sort = SortState{}
	e.page = 0
}

// Clear drops all rows.
func (e *Engine) Clear() {
	e.Load(nil, nil)
}

// SetFilter sets or clears (empty text) the filter for col and returns to
// the first page.
func (e *Engine) SetFilter(col, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		delete(e.filters, col)
	} else {
		e.filters[col] = text
	}
	e.page = 0
}

// ClearFilters removes every filter and returns to the first page.
func (e *Engine) ClearFilters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = make(map[string]string)
	e.page = 0
}

// ToggleSort cycles the sort for col and returns the new state.
func (e *Engine) ToggleSort(col string) SortState {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sort = ToggleSort(e.sort, col)
	return e.sort
}

// SetSort replaces the sort state, e.g. when restoring a saved session.
func (e *Engine) SetSort(s SortState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sort = s
}

// SetPage moves to page i. The index is clamped when the view is built.
func (e *Engine) SetPage(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page = i
}

// SetPageSize changes the page size and returns to the first page.
func (e *Engine) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pageSize = n
	e.page = 0
}

// Columns returns the display columns.
func (e *Engine) Columns() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.columns...)
}

// Len returns the number of loaded rows before filtering.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rows)
}

// Rows returns every filtered and sorted row, ignoring pagination.
func (e *Engine) Rows() []diff.Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visibleLocked()
}

func (e *Engine) visibleLocked() []diff.Row {
	return Sort(Filter(e.rows, e.filters), e.sort)
}

// View runs the full pipeline and returns the current page. The stored page
// index is clamped to the result.
func (e *Engine) View() Page {
	e.mu.Lock()
	defer e.mu.Unlock()

	visible := e.visibleLocked()
	info := Paginate(len(visible), e.pageSize, e.page)
	e.page = info.Index

	filters := make(map[string]string, len(e.filters))
	for k, v := range e.filters {
		filters[k] = v
	}

	return Page{
		Columns:  append([]string(nil), e.columns...),
		Rows:     info.Slice(visible),
		Sort:     e.sort,
		Filters:  filters,
		PageInfo: info,
	}
}
