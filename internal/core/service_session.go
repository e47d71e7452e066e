package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/prepflow/internal/backend"
	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/logging"
	"github.com/JonMunkholm/prepflow/internal/steps"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// sessionState is what survives a restart. The job itself is not saved: a
// restored session starts idle with its last result loaded.
type sessionState struct {
	Dataset string                  `json:"dataset"`
	Preview *backend.DatasetPreview `json:"preview,omitempty"`
	Config  steps.Config            `json:"config"`
	RunID   string                  `json:"run_id,omitempty"`
	Result  *diff.TransformResult   `json:"result,omitempty"`
	Sort    table.SortState         `json:"sort"`
	Filters map[string]string       `json:"filters,omitempty"`
	Page    int                     `json:"page"`
}

func (s *Service) snapshotState() sessionState {
	s.mu.RLock()
	st := sessionState{
		Dataset: s.dataset,
		Preview: s.preview,
		Config:  s.config.Clone(),
		RunID:   s.runID,
		Result:  s.result,
	}
	if st.Result != nil {
		view := s.table.View()
		st.Sort = view.Sort
		st.Filters = view.Filters
		st.Page = view.Index
	}
	s.mu.RUnlock()
	return st
}

// persist writes the session synchronously. Failures are logged; the
// in-memory state stays authoritative.
func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.store.Save(ctx, s.key, s.snapshotState()); err != nil {
		logging.FromContext(ctx).Warn("session not saved", "error", fmt.Errorf("session store: save: %w", err))
	}
}

// persistAsync saves from callbacks that must not block.
func (s *Service) persistAsync() {
	if s.store == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), SaveTimeout)
		defer cancel()
		s.persist(ctx)
	}()
}

// Restore loads the saved session, if any. It reports whether one was found.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}

	var st sessionState
	ok, err := s.store.Load(ctx, s.key, &st)
	if err != nil {
		return false, fmt.Errorf("session store: load: %w", err)
	}
	if !ok {
		return false, nil
	}

	if st.Config.Steps == nil {
		st.Config = steps.New()
	}

	s.mu.Lock()
	s.dataset = st.Dataset
	s.preview = st.Preview
	s.config = st.Config
	s.runID = st.RunID
	s.result = st.Result
	if st.Result != nil {
		s.table.Load(st.Result.Preview, resultColumns(st.Preview, st.Result))
		s.table.SetSort(st.Sort)
		for col, text := range st.Filters {
			s.table.SetFilter(col, text)
		}
		s.table.SetPage(st.Page)
	}
	s.mu.Unlock()

	slog.Info("session restored",
		"dataset", st.Dataset,
		"steps", len(st.Config.EnabledTypes()),
		"has_result", st.Result != nil,
	)
	return true, nil
}

// ClearSession stops the run, forgets the dataset, configuration and table,
// and deletes the saved session.
func (s *Service) ClearSession(ctx context.Context) error {
	s.orch.Reset()

	s.mu.Lock()
	s.dataset = ""
	s.preview = nil
	s.config = steps.New()
	s.runID = ""
	s.result = nil
	s.table.Clear()
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.store.Clear(ctx, s.key); err != nil {
		return fmt.Errorf("session store: clear: %w", err)
	}
	return nil
}
