package web

// handlers_table.go contains the result table handlers: view, sort,
// filters, export and save.

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/prepflow/internal/core"
)

// tableQuery builds a core.TableQuery from filter[...], page (1-based) and
// page_size query parameters.
func tableQuery(r *http.Request) core.TableQuery {
	q := core.TableQuery{Filters: parseFilters(r)}
	if page, ok := parseIntParam(r, "page"); ok {
		idx := page - 1
		q.Page = &idx
	}
	if size, ok := parseIntParam(r, "page_size"); ok {
		q.PageSize = &size
	}
	return q
}

// handleTable renders one page of the transformed table as JSON cells.
//
// Query parameters:
//   - page: 1-based page number
//   - page_size: rows per page
//   - filter[<column>]: case-insensitive substring filter
//   - mode: plain or compare
//   - highlight: comma-separated columns to highlight
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.TableView(r.Context(), tableQuery(r), parseMode(r), parseHighlight(r)...)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleClearFilters removes every table filter.
func (s *Server) handleClearFilters(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearFilters(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleSort cycles the sort on a column.
func (s *Server) handleToggleSort(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.ToggleSort(r.Context(), chi.URLParam(r, "column"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleExportCSV streams the filtered and sorted table as a CSV download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.service.ExportData()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleExportTarget hands the CSV to the configured export target: the
// export directory or the backend's download endpoint.
func (s *Server) handleExportTarget(w http.ResponseWriter, r *http.Request) {
	name, err := s.service.Export(r.Context(), nil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": name})
}

// handleSave saves the filtered and sorted table through the backend.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Save(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows": n})
}

// handleSummary returns the change summary of the loaded result.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.service.Summary()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
