package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/prepflow/internal/core"
	"github.com/JonMunkholm/prepflow/internal/web/templates"
)

// handleIndex renders the dashboard with the current job and, once a run
// has completed, the diff table. It accepts the same query parameters as
// /api/table.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := templates.IndexData{
		Dataset: s.service.Dataset(),
		Job:     s.service.Job(),
	}

	page, err := s.service.TableView(ctx, tableQuery(r), parseMode(r), parseHighlight(r)...)
	switch {
	case err == nil:
		data.Table = &page
	case !errors.Is(err, core.ErrNoResult):
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(data).Render(ctx, w); err != nil {
		s.respondError(w, r, err)
	}
}
