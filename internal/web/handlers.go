package web

// handlers.go contains the dataset, configuration and run handlers.

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/recommend"
	"github.com/JonMunkholm/prepflow/internal/steps"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePreview loads the preview of a dataset. Switching datasets clears
// the configuration and the result.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.LoadPreview(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRecommendations returns a fill recommendation per column with nulls.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.Recommendations()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if recs == nil {
		recs = []recommend.ColumnRecommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleApplyRecipe applies a YAML recipe body: the dataset is loaded and
// the configuration replaced.
func (s *Server) handleApplyRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := steps.ParseRecipe(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		s.respondError(w, r, &job.ValidationError{Field: fieldBody, Message: err.Error()})
		return
	}
	if err := s.service.ApplyRecipe(r.Context(), rec); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Config())
}

// handleGetConfig returns the step configuration.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Config())
}

// handleResetConfig drops every step, fill and the target.
func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ResetConfig(r.Context()))
}

// handleToggleStep flips one step on or off.
func (s *Server) handleToggleStep(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.ToggleStep(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleSetStep replaces one step's configuration.
func (s *Server) handleSetStep(w http.ResponseWriter, r *http.Request) {
	var sc steps.StepConfig
	if err := decodeJSON(w, r, &sc); err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg, err := s.service.SetStep(r.Context(), chi.URLParam(r, "type"), sc)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleSetFill sets the fill strategy for one column.
func (s *Server) handleSetFill(w http.ResponseWriter, r *http.Request) {
	var f recommend.FillStrategy
	if err := decodeJSON(w, r, &f); err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg, err := s.service.SetFill(r.Context(), chi.URLParam(r, "column"), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleClearFill removes the fill strategy for one column.
func (s *Server) handleClearFill(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.ClearFill(r.Context(), chi.URLParam(r, "column"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type setTargetRequest struct {
	Column string `json:"column"`
}

// handleSetTarget sets the target column. An empty column clears it.
func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req setTargetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	cfg, err := s.service.SetTarget(r.Context(), req.Column)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePayload returns the request a run would send, steps in canonical
// order.
func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	req := s.service.RunRequest()
	if req.Steps == nil {
		req.Steps = []steps.PipelineStep{}
	}
	writeJSON(w, http.StatusOK, req)
}

// handleStartRun submits the current configuration, superseding any
// active run.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.service.Run(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// jobView is the JSON shape of a job snapshot.
type jobView struct {
	job.Job
	ElapsedSeconds int `json:"elapsed_seconds"`
}

func newJobView(j job.Job) jobView {
	return jobView{Job: j, ElapsedSeconds: j.ElapsedSeconds()}
}

// handleGetRun returns the current job snapshot.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newJobView(s.service.Job()))
}

// handleResetRun stops the current run. The last table is kept.
func (s *Server) handleResetRun(w http.ResponseWriter, r *http.Request) {
	s.service.ResetRun()
	if s.metrics != nil {
		s.metrics.RunReset()
	}
	writeJSON(w, http.StatusOK, newJobView(s.service.Job()))
}

// handleClearSession forgets the dataset, configuration, run and table,
// and deletes the stored session.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearSession(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RunReset()
	}
	w.WriteHeader(http.StatusNoContent)
}
