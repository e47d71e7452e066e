package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/prepflow/internal/backend"
	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/logging"
	"github.com/JonMunkholm/prepflow/internal/recommend"
	"github.com/JonMunkholm/prepflow/internal/session"
	"github.com/JonMunkholm/prepflow/internal/steps"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// SaveTimeout bounds a background session write.
var SaveTimeout = 5 * time.Second

// DefaultSessionKey is used when Options.SessionKey is empty.
const DefaultSessionKey = "prepflow:session"

// FieldColumn and FieldStep tag validation errors raised by the service.
const (
	FieldColumn = "column"
	FieldStep   = "step"
	FieldFill   = "fill"
)

// ErrNoResult is returned by table operations before any run completed.
var ErrNoResult = errors.New("no transformed table")

// Backend is the part of the processing backend the service needs.
type Backend interface {
	job.Backend
	Preview(ctx context.Context, filename string) (*backend.DatasetPreview, error)
}

// Options configures a Service.
type Options struct {
	Backend Backend

	// Store persists the session between restarts. Optional.
	Store      *session.Store
	SessionKey string

	PageSize int
	AutoFill bool // seed fills from recommendations when a preview loads

	// Exporter receives CSV exports. Optional.
	Exporter table.Exporter
	// NewPersister builds the save target. ref reports the dataset and
	// backend job of the loaded result at save time. Optional.
	NewPersister func(ref func() (datasetRef, jobID string)) table.Persister

	// Job configures the orchestrator. OnResult is owned by the service.
	Job job.Options
}

// Service holds the state of the single user session: the dataset preview,
// the step configuration, the current job and the transformed table.
type Service struct {
	backend   Backend
	store     *session.Store
	key       string
	autoFill  bool
	exporter  table.Exporter
	persister table.Persister

	orch  *job.Orchestrator
	table *table.Engine

	// mu also covers reloading table, so rows and result always match.
	mu      sync.RWMutex
	dataset string
	preview *backend.DatasetPreview
	config  steps.Config
	runID   string
	result  *diff.TransformResult

	saveMu sync.Mutex
	wg     sync.WaitGroup
}

// NewService creates a Service with an idle orchestrator.
func NewService(opts Options) *Service {
	key := opts.SessionKey
	if key == "" {
		key = DefaultSessionKey
	}

	s := &Service{
		backend:  opts.Backend,
		store:    opts.Store,
		key:      key,
		autoFill: opts.AutoFill,
		exporter: opts.Exporter,
		table:    table.NewEngine(opts.PageSize),
		config:   steps.New(),
	}
	if opts.NewPersister != nil {
		s.persister = opts.NewPersister(s.storageRef)
	}

	jobOpts := opts.Job
	jobOpts.OnResult = s.handleResult
	s.orch = job.NewOrchestrator(opts.Backend, jobOpts)

	return s
}

// Close stops the current run and waits for pending session writes.
func (s *Service) Close() {
	s.orch.Close()
	s.wg.Wait()
}

// LoadPreview fetches the preview of filename. Loading a different dataset
// clears the step configuration, the run and the table.
func (s *Service) LoadPreview(ctx context.Context, filename string) (*backend.DatasetPreview, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, &job.ValidationError{Field: job.FieldDataset, Message: "no dataset selected"}
	}

	p, err := s.backend.Preview(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	changed := s.dataset != name
	s.mu.RUnlock()

	// Stop the old run first so its result cannot land on the new dataset.
	if changed {
		s.orch.Reset()
	}

	s.mu.Lock()
	s.dataset = name
	s.preview = p
	if changed {
		s.config = steps.New()
		s.runID = ""
		s.result = nil
	}
	if s.autoFill {
		s.config = steps.SeedFills(s.config, p.ColumnInfo())
	}
	if changed {
		s.table.Clear()
	}
	s.mu.Unlock()

	logging.FromContext(ctx).Info("dataset preview loaded",
		"dataset", name,
		"columns", len(p.Columns),
		"rows", p.TotalRows,
		"nulls", p.TotalNulls(),
		"changed", changed,
	)

	s.persist(ctx)
	return p, nil
}

// ApplyRecipe loads the recipe's dataset and replaces the configuration
// with the recipe's.
func (s *Service) ApplyRecipe(ctx context.Context, r *steps.Recipe) error {
	cfg, err := r.Config()
	if err != nil {
		return &job.ValidationError{Field: FieldStep, Message: err.Error()}
	}
	p, err := s.LoadPreview(ctx, r.Dataset)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if r.AutoFill {
		cfg = steps.SeedFills(cfg, p.ColumnInfo())
	}
	s.config = cfg
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// Preview returns the loaded preview, or nil.
func (s *Service) Preview() *backend.DatasetPreview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview
}

// Dataset returns the loaded dataset name.
func (s *Service) Dataset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Recommendations returns a fill recommendation for every column with nulls.
func (s *Service) Recommendations() ([]recommend.ColumnRecommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.preview == nil {
		return nil, &job.ValidationError{Field: job.FieldDataset, Message: "no dataset selected"}
	}
	return recommend.RecommendAll(s.preview.ColumnInfo()), nil
}

// Config returns a copy of the step configuration.
func (s *Service) Config() steps.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// ToggleStep flips a step on or off.
func (s *Service) ToggleStep(ctx context.Context, name string) (steps.Config, error) {
	t, err := parseStep(name)
	if err != nil {
		return steps.Config{}, err
	}
	return s.update(ctx, func(c steps.Config) (steps.Config, error) {
		return steps.Toggle(c, t), nil
	})
}

// SetStep replaces one step's configuration. Columns must exist in the
// loaded dataset.
func (s *Service) SetStep(ctx context.Context, name string, sc steps.StepConfig) (steps.Config, error) {
	t, err := parseStep(name)
	if err != nil {
		return steps.Config{}, err
	}
	return s.update(ctx, func(c steps.Config) (steps.Config, error) {
		for _, col := range sc.Columns {
			if err := s.checkColumnLocked(col); err != nil {
				return c, err
			}
		}
		return steps.SetStep(c, t, sc), nil
	})
}

// SetFill sets the fill strategy for col.
func (s *Service) SetFill(ctx context.Context, col string, f recommend.FillStrategy) (steps.Config, error) {
	return s.update(ctx, func(c steps.Config) (steps.Config, error) {
		if err := s.checkColumnLocked(col); err != nil {
			return c, err
		}
		next, err := steps.SetFill(c, col, f)
		if err != nil {
			return c, &job.ValidationError{Field: FieldFill, Message: err.Error()}
		}
		return next, nil
	})
}

// ClearFill removes the fill strategy for col.
func (s *Service) ClearFill(ctx context.Context, col string) (steps.Config, error) {
	return s.update(ctx, func(c steps.Config) (steps.Config, error) {
		return steps.ClearFill(c, col), nil
	})
}

// SetTarget sets the target column. An empty name clears it.
func (s *Service) SetTarget(ctx context.Context, col string) (steps.Config, error) {
	col = strings.TrimSpace(col)
	return s.update(ctx, func(c steps.Config) (steps.Config, error) {
		if col != "" {
			if err := s.checkColumnLocked(col); err != nil {
				return c, err
			}
		}
		return steps.SetTarget(c, col), nil
	})
}

// ResetConfig drops every step, fill and the target.
func (s *Service) ResetConfig(ctx context.Context) steps.Config {
	c, _ := s.update(ctx, func(steps.Config) (steps.Config, error) {
		return steps.New(), nil
	})
	return c
}

func (s *Service) update(ctx context.Context, fn func(steps.Config) (steps.Config, error)) (steps.Config, error) {
	s.mu.Lock()
	next, err := fn(s.config)
	if err != nil {
		s.mu.Unlock()
		return steps.Config{}, err
	}
	s.config = next
	out := next.Clone()
	s.mu.Unlock()

	s.persist(ctx)
	return out, nil
}

// checkColumnLocked accepts any column while no preview is loaded.
func (s *Service) checkColumnLocked(col string) error {
	if s.preview == nil {
		return nil
	}
	if !slices.Contains(s.preview.Columns, col) {
		return &job.ValidationError{Field: FieldColumn, Message: fmt.Sprintf("unknown column %q", col)}
	}
	return nil
}

func parseStep(name string) (steps.StepType, error) {
	t, err := steps.ParseStepType(name)
	if err != nil {
		return "", &job.ValidationError{Field: FieldStep, Message: err.Error()}
	}
	return t, nil
}

// Payload renders the pipeline for the current configuration.
func (s *Service) Payload() []steps.PipelineStep {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return steps.BuildPayload(s.config, s.columnsLocked())
}

// RunRequest builds the request StartRun would send.
func (s *Service) RunRequest() job.RunRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return job.RunRequest{
		DatasetRef:   s.dataset,
		TargetColumn: s.config.Target,
		Steps:        steps.BuildPayload(s.config, s.columnsLocked()),
	}
}

func (s *Service) columnsLocked() []string {
	if s.preview == nil {
		return nil
	}
	return s.preview.Columns
}

// Run submits the current configuration. It supersedes any active run.
func (s *Service) Run(ctx context.Context) (string, error) {
	req := s.RunRequest()

	attrs := []any{"dataset", req.DatasetRef, "steps", len(req.Steps)}
	if r, ok := RequesterFromContext(ctx); ok {
		attrs = append(attrs, r.logAttrs()...)
	}
	log := logging.WithFields(ctx, attrs...)

	runID, err := s.orch.StartRun(ctx, req)
	if err != nil {
		log.Warn("run not started", "error", err)
		return runID, err
	}
	log.Info("run started", "run_id", runID)
	return runID, nil
}

// Job returns the current job snapshot.
func (s *Service) Job() job.Job {
	return s.orch.Snapshot()
}

// Subscribe streams job snapshots. See job.Orchestrator.Subscribe.
func (s *Service) Subscribe() (<-chan job.Job, func()) {
	return s.orch.Subscribe()
}

// ResetRun stops the current run. The last transformed table is kept.
func (s *Service) ResetRun() {
	s.orch.Reset()
}

// handleResult runs with the orchestrator lock held.
func (s *Service) handleResult(runID string, res *diff.TransformResult) {
	s.mu.Lock()
	s.runID = runID
	s.result = res
	cols := resultColumns(s.preview, res)
	s.table.Load(res.Preview, cols)
	s.mu.Unlock()

	slog.Info("transformed table loaded",
		"run_id", runID,
		"rows", len(res.Preview),
		"columns", len(cols),
		"updated_cells", diff.Summarize(*res).UpdatedCells,
	)

	s.persistAsync()
}

// resultColumns is the preview's column order with removed columns dropped
// and added ones appended. Columns present in the rows but reported nowhere
// go last in name order.
func resultColumns(p *backend.DatasetPreview, res *diff.TransformResult) []string {
	if p == nil {
		return nil
	}
	removed := make(map[string]struct{}, len(res.ColumnSummary.Removed))
	for _, c := range res.ColumnSummary.Removed {
		removed[c] = struct{}{}
	}

	seen := make(map[string]struct{})
	var cols []string
	add := func(c string) {
		if c == diff.OrigIndexKey {
			return
		}
		if _, ok := removed[c]; ok {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}

	for _, c := range p.Columns {
		add(c)
	}
	for _, c := range res.ColumnSummary.Added {
		add(c)
	}
	if len(res.Preview) > 0 {
		var extra []string
		for k := range res.Preview[0] {
			if _, ok := seen[k]; !ok {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		for _, c := range extra {
			add(c)
		}
	}
	return cols
}

// Result returns the loaded result, or nil.
func (s *Service) Result() *diff.TransformResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Summary aggregates the loaded result.
func (s *Service) Summary() (diff.Summary, error) {
	res := s.Result()
	if res == nil {
		return diff.Summary{}, ErrNoResult
	}
	return diff.Summarize(*res), nil
}

// storageRef reports the dataset and the backend job of the loaded result.
func (s *Service) storageRef() (string, string) {
	s.mu.RLock()
	dataset, runID := s.dataset, s.runID
	s.mu.RUnlock()

	snap := s.orch.Snapshot()
	if snap.ID == runID {
		return dataset, snap.BackendID
	}
	return dataset, ""
}
