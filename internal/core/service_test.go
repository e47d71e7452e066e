package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/prepflow/internal/backend"
	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/recommend"
	"github.com/JonMunkholm/prepflow/internal/session"
	"github.com/JonMunkholm/prepflow/internal/steps"
	"github.com/JonMunkholm/prepflow/internal/table"
)

type fakeBackend struct {
	mu       sync.Mutex
	previews map[string]*backend.DatasetPreview
	result   *diff.TransformResult
	requests []job.RunRequest
}

func (f *fakeBackend) Preview(_ context.Context, name string) (*backend.DatasetPreview, error) {
	p, ok := f.previews[name]
	if !ok {
		return nil, &job.ServerError{StatusCode: 404, Message: "file not found"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBackend) StartRun(_ context.Context, req job.RunRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return "backend-1", nil
}

func (f *fakeBackend) Status(context.Context, string) (job.StatusResponse, error) {
	return job.StatusResponse{Status: "completed", Progress: 100, Result: f.result}, nil
}

func (f *fakeBackend) lastRequest() job.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func salesPreview() *backend.DatasetPreview {
	return &backend.DatasetPreview{
		Filename:     "sales.csv",
		Columns:      []string{"id", "age", "city", "zip"},
		Dtypes:       map[string]string{"id": "int64", "age": "float64", "city": "object", "zip": "object"},
		NullCounts:   map[string]int{"age": 3, "city": 2},
		SampleValues: map[string]any{"id": 1.0, "age": 31.0, "city": "Oslo", "zip": "0150"},
		TotalRows:    3,
	}
}

func salesResult() *diff.TransformResult {
	return &diff.TransformResult{
		OriginalRowCount:    3,
		TransformedRowCount: 3,
		Preview: []diff.Row{
			{diff.OrigIndexKey: 0.0, "id": 1.0, "age": 0.5, "city": "Oslo", "age_bin": "b1"},
			{diff.OrigIndexKey: 1.0, "id": 2.0, "age": 0.1, "city": "Bergen", "age_bin": "b0"},
			{diff.OrigIndexKey: 2.0, "id": 3.0, "age": 0.9, "city": "Oslo", "age_bin": "b2"},
		},
		OriginalPreview: []diff.Row{
			{diff.OrigIndexKey: 0.0, "id": 1.0, "age": 31.0, "city": "Oslo"},
			{diff.OrigIndexKey: 1.0, "id": 2.0, "age": nil, "city": "Bergen"},
			{diff.OrigIndexKey: 2.0, "id": 3.0, "age": 58.0, "city": "Oslo"},
		},
		DiffMarks: diff.Marks{
			UpdatedCells: map[string]map[string]any{
				"0": {"age": true},
				"1": {"age": true},
				"2": {"age": true},
			},
		},
		ChangeMetadata: []diff.ChangeEntry{{Operation: "scaling"}, {Operation: "binning"}},
		ColumnSummary:  diff.ColumnSummary{Added: []string{"age_bin"}, Removed: []string{"zip"}},
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{
		previews: map[string]*backend.DatasetPreview{
			"sales.csv": salesPreview(),
			"other.csv": {Columns: []string{"x"}},
		},
		result: salesResult(),
	}
	opts.Backend = fb
	opts.Job = job.Options{
		PollInterval:      5 * time.Millisecond,
		AnimationDuration: 10 * time.Millisecond,
		AnimationFrame:    2 * time.Millisecond,
		ElapsedTick:       2 * time.Millisecond,
	}
	s := NewService(opts)
	t.Cleanup(s.Close)
	return s, fb
}

func runToCompletion(t *testing.T, s *Service) {
	t.Helper()
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Job().Status == job.StatusCompleted }, time.Second, time.Millisecond)
	require.NotNil(t, s.Result())
}

func TestLoadPreview_DatasetChangeClearsConfig(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{})

	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)

	// Reloading the same dataset keeps the configuration.
	_, err = s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	assert.True(t, s.Config().Step(steps.Scaling).Enabled)

	_, err = s.LoadPreview(ctx, "other.csv")
	require.NoError(t, err)
	assert.Empty(t, s.Config().EnabledTypes())
	assert.Equal(t, "other.csv", s.Dataset())
}

func TestLoadPreview_Errors(t *testing.T) {
	s, _ := newTestService(t, Options{})

	_, err := s.LoadPreview(context.Background(), "  ")
	assert.Equal(t, "VAL001", MapError(err).Code)

	_, err = s.LoadPreview(context.Background(), "missing.csv")
	assert.Equal(t, "SRV001", MapError(err).Code)
	assert.Equal(t, "file not found", MapError(err).Message)
}

func TestLoadPreview_AutoFill(t *testing.T) {
	s, _ := newTestService(t, Options{AutoFill: true})

	_, err := s.LoadPreview(context.Background(), "sales.csv")
	require.NoError(t, err)

	fills := s.Config().Fills
	assert.Equal(t, recommend.StrategyMedian, fills["age"].Strategy)
	assert.Contains(t, fills, "city")
	assert.NotContains(t, fills, "id")
}

func TestRecommendations(t *testing.T) {
	s, _ := newTestService(t, Options{})

	_, err := s.Recommendations()
	assert.Equal(t, "VAL001", MapError(err).Code)

	_, err = s.LoadPreview(context.Background(), "sales.csv")
	require.NoError(t, err)
	recs, err := s.Recommendations()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "age", recs[0].Column)
}

func TestConfigEdits_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)

	_, err = s.ToggleStep(ctx, "normalize")
	assert.Equal(t, "VAL004", MapError(err).Code)

	_, err = s.SetFill(ctx, "nope", recommend.FillStrategy{Strategy: recommend.StrategyMean})
	assert.Equal(t, "VAL004", MapError(err).Code)

	_, err = s.SetFill(ctx, "age", recommend.FillStrategy{Strategy: recommend.StrategyCustom})
	var ve *job.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, FieldFill, ve.Field)

	_, err = s.SetStep(ctx, "scaling", steps.StepConfig{Enabled: true, Columns: []string{"age", "ghost"}})
	assert.Equal(t, "VAL004", MapError(err).Code)

	_, err = s.SetTarget(ctx, "ghost")
	assert.Equal(t, "VAL004", MapError(err).Code)

	cfg, err := s.SetTarget(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, "city", cfg.Target)

	cfg, err = s.SetTarget(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Target)
}

func TestPayload_NullHandlingFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)

	_, err = s.SetStep(ctx, "binning", steps.StepConfig{Enabled: true, Columns: []string{"age"}})
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)
	_, err = s.SetFill(ctx, "age", recommend.FillStrategy{Strategy: recommend.StrategyMedian})
	require.NoError(t, err)

	payload := s.Payload()
	require.Len(t, payload, 3)
	assert.Equal(t, "1_null_handling", payload[0].ID)
	assert.Equal(t, "2_scaling", payload[1].ID)
	assert.Equal(t, "3_binning", payload[2].ID)
}

func TestRun_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{})

	_, err := s.Run(ctx)
	assert.Equal(t, "VAL001", MapError(err).Code)

	_, err = s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.Run(ctx)
	assert.Equal(t, "VAL002", MapError(err).Code)

	_, err = s.ToggleStep(ctx, "feature_selection")
	require.NoError(t, err)
	_, err = s.Run(ctx)
	assert.Equal(t, "VAL003", MapError(err).Code)

	assert.Equal(t, job.StatusIdle, s.Job().Status)
}

func TestRun_LoadsResultIntoTable(t *testing.T) {
	ctx := context.Background()
	s, fb := newTestService(t, Options{PageSize: 2})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)

	_, err = s.TableView(ctx, TableQuery{}, diff.ModePlain)
	assert.ErrorIs(t, err, ErrNoResult)

	runToCompletion(t, s)
	assert.Equal(t, "sales.csv", fb.lastRequest().DatasetRef)

	page, err := s.TableView(ctx, TableQuery{}, diff.ModeCompare)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "age", "city", "age_bin"}, page.Columns)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Cells, 2)

	age := page.Cells[0][1]
	assert.True(t, age.Highlighted)
	assert.True(t, age.HasOriginal)
	assert.Equal(t, "31", age.Original)
	assert.False(t, page.Cells[0][0].Highlighted)

	assert.Equal(t, 3, page.Summary.UpdatedCells)
	assert.Equal(t, []string{"age"}, page.Summary.ChangedColumns)

	// Highlight only a subset of columns.
	page, err = s.TableView(ctx, TableQuery{}, diff.ModePlain, "city")
	require.NoError(t, err)
	assert.False(t, page.Cells[0][1].Highlighted)
}

func TestTableView_FilterSortAndPage(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{PageSize: 2})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)
	runToCompletion(t, s)

	st, err := s.ToggleSort(ctx, "age")
	require.NoError(t, err)
	assert.Equal(t, table.SortState{Column: "age"}, st)

	page, err := s.TableView(ctx, TableQuery{Filters: map[string]string{"city": "oslo"}}, diff.ModePlain)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalRows)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, 0.5, page.Rows[0]["age"])
	assert.Equal(t, 0.9, page.Rows[1]["age"])

	require.NoError(t, s.ClearFilters(ctx))
	one := 1
	page, err = s.TableView(ctx, TableQuery{Page: &one}, diff.ModePlain)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Index)
	assert.Len(t, page.Rows, 1)
}

func TestExportAndSave(t *testing.T) {
	ctx := context.Background()

	var exported []byte
	var exportedName string
	var savedRows int
	var savedDataset, savedJob string

	s, _ := newTestService(t, Options{
		Exporter: table.ExporterFunc(func(_ context.Context, name string, data []byte) error {
			exportedName, exported = name, data
			return nil
		}),
		NewPersister: func(ref func() (string, string)) table.Persister {
			return table.PersisterFunc(func(_ context.Context, rows []diff.Row) error {
				savedDataset, savedJob = ref()
				savedRows = len(rows)
				return nil
			})
		},
	})

	_, err := s.Export(ctx, nil)
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)
	runToCompletion(t, s)

	name, err := s.Export(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "sales_transformed.csv", name)
	assert.Equal(t, name, exportedName)
	assert.Contains(t, string(exported), "id,age,city,age_bin\n1,0.5,\"Oslo\",\"b1\"")

	filename, data, err := s.ExportData()
	require.NoError(t, err)
	assert.Equal(t, "sales_transformed.csv", filename)
	assert.Equal(t, exported, data)

	n, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, savedRows)
	assert.Equal(t, "sales.csv", savedDataset)
	assert.Equal(t, "backend-1", savedJob)
}

func TestExport_NoTarget(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)
	runToCompletion(t, s)

	_, err = s.Export(ctx, nil)
	assert.ErrorIs(t, err, table.ErrNoExporter)
	assert.Equal(t, "TBL001", MapError(err).Code)
}

func TestDatasetChange_DropsResult(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)
	runToCompletion(t, s)

	_, err = s.LoadPreview(ctx, "other.csv")
	require.NoError(t, err)
	assert.Nil(t, s.Result())
	assert.Equal(t, job.StatusIdle, s.Job().Status)
	_, err = s.Summary()
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestSession_RestoreAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewMemoryKV(), 1, 0)

	s, _ := newTestService(t, Options{Store: store, PageSize: 2})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	_, err = s.ToggleStep(ctx, "scaling")
	require.NoError(t, err)
	_, err = s.SetTarget(ctx, "city")
	require.NoError(t, err)
	runToCompletion(t, s)
	_, err = s.ToggleSort(ctx, "id")
	require.NoError(t, err)
	_, err = s.ToggleSort(ctx, "id")
	require.NoError(t, err)
	s.Close()

	restored, _ := newTestService(t, Options{Store: store, PageSize: 2})
	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "sales.csv", restored.Dataset())
	assert.True(t, restored.Config().Step(steps.Scaling).Enabled)
	assert.Equal(t, "city", restored.Config().Target)
	assert.Equal(t, job.StatusIdle, restored.Job().Status)

	page, err := restored.TableView(ctx, TableQuery{}, diff.ModePlain)
	require.NoError(t, err)
	assert.Equal(t, table.SortState{Column: "id", Desc: true}, page.Sort)
	assert.Equal(t, 3.0, page.Rows[0]["id"])
	assert.True(t, page.Cells[0][1].Highlighted)
}

func TestSession_RestoreEmptyAndClear(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewMemoryKV(), 1, 0)

	s, _ := newTestService(t, Options{Store: store})
	ok, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)
	require.NoError(t, s.ClearSession(ctx))
	assert.Empty(t, s.Dataset())

	ok, err = s.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingKV struct{ session.KV }

func (failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("dial tcp 10.0.0.1:6379: connect: connection timed out")
}

func TestSession_RestoreFailureMapsToStore(t *testing.T) {
	s, _ := newTestService(t, Options{Store: session.NewStore(failingKV{}, 1, 0)})

	_, err := s.Restore(context.Background())
	require.Error(t, err)
	assert.Equal(t, "STO001", MapError(err).Code)
}

func TestResultColumns(t *testing.T) {
	res := salesResult()
	assert.Equal(t, []string{"id", "age", "city", "age_bin"}, resultColumns(salesPreview(), res))
	assert.Nil(t, resultColumns(nil, res))

	res.ColumnSummary.Added = nil
	assert.Equal(t, []string{"id", "age", "city", "age_bin"}, resultColumns(salesPreview(), res),
		"unreported columns come from the rows")
}

func TestRequesterLogAttrs(t *testing.T) {
	ctx := WithRequester(context.Background(), Requester{IP: "10.0.0.1", Source: "web"})
	r, ok := RequesterFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []any{"source", "web", "client_ip", "10.0.0.1"}, r.logAttrs())

	_, ok = RequesterFromContext(context.Background())
	assert.False(t, ok)
}

func TestTableView_RowsMatchMarksDuringReload(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Options{PageSize: 10})
	_, err := s.LoadPreview(ctx, "sales.csv")
	require.NoError(t, err)

	tagged := func(tag string, marked bool) *diff.TransformResult {
		res := &diff.TransformResult{DiffMarks: diff.Marks{UpdatedCells: map[string]map[string]any{}}}
		for i := 0; i < 5; i++ {
			res.Preview = append(res.Preview, diff.Row{diff.OrigIndexKey: float64(i), "id": float64(i), "tag": tag})
			if marked {
				res.DiffMarks.UpdatedCells[strconv.Itoa(i)] = map[string]any{"tag": true}
			}
		}
		return res
	}
	resA, resB := tagged("a", true), tagged("b", false)
	s.handleResult("run-a", resA)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				s.handleResult("run-b", resB)
			} else {
				s.handleResult("run-a", resA)
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		page, err := s.TableView(ctx, TableQuery{}, diff.ModePlain)
		require.NoError(t, err)
		col := -1
		for j, c := range page.Columns {
			if c == "tag" {
				col = j
			}
		}
		require.GreaterOrEqual(t, col, 0, "columns %v", page.Columns)
		for i, row := range page.Rows {
			assert.Equal(t, row["tag"] == "a", page.Cells[i][col].Highlighted, "row %v", row)
		}
	}
}
