package job

// orchestrator.go drives one job at a time against the backend.
//
// Lifecycle: idle -> queued -> pending -> running -> completed, or any active
// state -> failed. StartRun stops the previous run's tasks under the lock
// before the new job exists, so a stale poller can never observe the new job.
// Responses carry the run token they were requested for and are applied only
// if that token is still current when they resolve.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/prepflow/internal/diff"
)

// Default task intervals.
const (
	DefaultPollInterval      = 1500 * time.Millisecond
	DefaultAnimationDuration = 600 * time.Millisecond
	DefaultAnimationFrame    = 50 * time.Millisecond
	DefaultElapsedTick       = time.Second
)

// Options configures an Orchestrator. Zero values use the defaults.
type Options struct {
	PollInterval      time.Duration
	AnimationDuration time.Duration
	AnimationFrame    time.Duration
	ElapsedTick       time.Duration

	// OnResult receives the result of the current run when it completes. It
	// runs with the orchestrator lock held, so it must not call back into the
	// Orchestrator.
	OnResult func(runID string, res *diff.TransformResult)

	Observer Observer
	Logger   *slog.Logger
}

// Orchestrator tracks the single current job.
type Orchestrator struct {
	backend Backend
	opts    Options
	log     *slog.Logger

	mu          sync.Mutex
	token       uint64
	job         Job
	startMono   time.Time
	tasks       []context.CancelFunc
	animator    *Animator
	subscribers []chan Job

	wg sync.WaitGroup
}

// NewOrchestrator returns an idle orchestrator.
func NewOrchestrator(b Backend, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.AnimationDuration <= 0 {
		opts.AnimationDuration = DefaultAnimationDuration
	}
	if opts.AnimationFrame <= 0 {
		opts.AnimationFrame = DefaultAnimationFrame
	}
	if opts.ElapsedTick <= 0 {
		opts.ElapsedTick = DefaultElapsedTick
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		backend: b,
		opts:    opts,
		log:     log.With("component", "job"),
		job:     Job{Status: StatusIdle},
	}
}

// Snapshot returns a copy of the current job.
func (o *Orchestrator) Snapshot() Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job
}

// StartRun validates req, supersedes any previous run and submits the new
// one. It returns the local run id. Validation errors create no job. Start
// errors leave the job failed and are returned so callers can report them.
func (o *Orchestrator) StartRun(ctx context.Context, req RunRequest) (string, error) {
	if err := Validate(req); err != nil {
		return "", err
	}

	o.mu.Lock()
	o.stopRunLocked()
	o.token++
	token := o.token
	runID := uuid.NewString()
	now := time.Now()
	o.startMono = now
	o.job = Job{
		ID:        runID,
		Status:    StatusQueued,
		Message:   "Submitting job",
		StartedAt: now,
	}
	o.animator = NewAnimator(o.opts.AnimationDuration, o.opts.AnimationFrame)
	o.startTaskLocked(func(ctx context.Context) { o.tickElapsed(ctx, token) })
	o.startTaskLocked(func(ctx context.Context) { o.animate(ctx, token, o.animator) })
	o.opts.Observer.RunStarted()
	o.notifyLocked()
	o.mu.Unlock()

	log := o.log.With("run_id", runID, "dataset", req.DatasetRef, "steps", len(req.Steps))
	log.Info("run submitted")

	backendID, err := o.backend.StartRun(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()

	if token != o.token {
		log.Debug("start response discarded", "error", ErrStaleResponse)
		o.opts.Observer.StaleDiscarded("start")
		return runID, nil
	}

	if err != nil {
		log.Warn("run start failed", "error", err)
		o.failLocked(err)
		return runID, err
	}

	o.job.BackendID = backendID
	o.job.Status = StatusPending
	o.job.Message = "Job accepted"
	o.startTaskLocked(func(ctx context.Context) { o.poll(ctx, token, backendID) })
	o.notifyLocked()

	log.Info("run accepted", "job_id", backendID)
	return runID, nil
}

// Reset stops every task and returns to idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopRunLocked()
	o.token++
	o.job = Job{Status: StatusIdle}
	o.animator = nil
}

// Close resets the orchestrator and waits for its goroutines to exit.
func (o *Orchestrator) Close() {
	o.Reset()
	o.wg.Wait()
}

// Subscribe returns a channel of job snapshots. It receives the current
// snapshot immediately and is closed when the run reaches a terminal state,
// or on the next StartRun or Reset. The returned func unsubscribes early.
func (o *Orchestrator) Subscribe() (<-chan Job, func()) {
	ch := make(chan Job, 16)

	o.mu.Lock()
	defer o.mu.Unlock()

	ch <- o.job
	if !o.job.Status.Active() {
		close(ch)
		return ch, func() {}
	}
	o.subscribers = append(o.subscribers, ch)

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, c := range o.subscribers {
			if c == ch {
				o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
				close(c)
				return
			}
		}
	}
}

// startTaskLocked runs fn in a goroutine with its own cancel func.
func (o *Orchestrator) startTaskLocked(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	o.tasks = append(o.tasks, cancel)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(ctx)
	}()
}

// stopRunLocked cancels every task of the current run and closes subscribers.
func (o *Orchestrator) stopRunLocked() {
	o.stopTasksLocked()
	o.closeSubscribersLocked()
}

func (o *Orchestrator) stopTasksLocked() {
	for _, cancel := range o.tasks {
		cancel()
	}
	o.tasks = nil
}

func (o *Orchestrator) closeSubscribersLocked() {
	for _, ch := range o.subscribers {
		close(ch)
	}
	o.subscribers = nil
}

// notifyLocked sends the current snapshot to subscribers. Slow subscribers
// lose intermediate snapshots but always see the latest one.
func (o *Orchestrator) notifyLocked() {
	for _, ch := range o.subscribers {
		select {
		case ch <- o.job:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- o.job:
		default:
		}
	}
}

// finishLocked freezes the elapsed time at the terminal observation, stops
// all tasks and releases subscribers.
func (o *Orchestrator) finishLocked(observedAt time.Time) {
	o.job.FinishedAt = observedAt
	o.job.Elapsed = observedAt.Sub(o.startMono)
	o.stopTasksLocked()
	o.opts.Observer.RunFinished(o.job.Status, o.job.Elapsed)
	o.notifyLocked()
	o.closeSubscribersLocked()
}

func (o *Orchestrator) failLocked(err error) {
	o.job.Status = StatusFailed
	o.job.Error = FailureMessage(err)
	o.job.Message = "Job failed"
	o.finishLocked(time.Now())
}

// poll requests the job status every PollInterval until the job is terminal,
// the run is superseded, or ctx is cancelled. Requests never overlap.
func (o *Orchestrator) poll(ctx context.Context, token uint64, backendID string) {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		resp, err := o.backend.Status(ctx, backendID)
		if done := o.applyStatus(token, backendID, resp, err, time.Since(start)); done {
			return
		}
	}
}

// applyStatus applies one poll result if token is still current. It reports
// whether polling should stop.
func (o *Orchestrator) applyStatus(token uint64, backendID string, resp StatusResponse, err error, took time.Duration) bool {
	observedAt := time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	if token != o.token {
		o.log.Debug("status response discarded",
			"job_id", backendID,
			"error", ErrStaleResponse,
		)
		o.opts.Observer.StaleDiscarded("poll")
		return true
	}
	if o.job.Status.Terminal() {
		return true
	}

	o.opts.Observer.PollCompleted(took, err)
	log := o.log.With("run_id", o.job.ID, "job_id", backendID)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return true
		}
		log.Warn("status poll failed", "error", err)
		o.failLocked(err)
		return true
	}

	status := ParseStatus(resp.Status)
	if status.rank() < o.job.Status.rank() {
		status = o.job.Status
	}

	o.job.Status = status
	o.job.Progress = clampProgress(resp.Progress)
	if resp.Message != "" {
		o.job.Message = resp.Message
	}

	switch status {
	case StatusCompleted:
		o.job.Progress = 100
		o.job.Display = 100
		o.job.Result = resp.Result
		if o.animator != nil {
			o.animator.Jump(100)
		}
		if resp.Result == nil {
			log.Warn("completed job carried no result")
		}
		o.finishLocked(observedAt)
		log.Info("run completed", "elapsed_ms", o.job.Elapsed.Milliseconds())
		if resp.Result != nil && o.opts.OnResult != nil {
			o.opts.OnResult(o.job.ID, resp.Result)
		}
		return true

	case StatusFailed:
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = "job failed"
		}
		log.Warn("run failed", "error", msg)
		o.failLocked(&JobFailure{JobID: backendID, Message: msg})
		return true
	}

	if o.animator != nil {
		o.animator.SetTarget(float64(o.job.Progress))
	}
	o.notifyLocked()
	return false
}

// animate writes interpolated progress into the job while the run is current.
func (o *Orchestrator) animate(ctx context.Context, token uint64, a *Animator) {
	a.Run(ctx, func(v float64) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if token != o.token || o.job.Status.Terminal() {
			return
		}
		o.job.Display = v
		o.notifyLocked()
	})
}

// tickElapsed updates the elapsed time from the monotonic start until the
// run ends.
func (o *Orchestrator) tickElapsed(ctx context.Context, token uint64) {
	ticker := time.NewTicker(o.opts.ElapsedTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.mu.Lock()
			if token != o.token || o.job.Status.Terminal() {
				o.mu.Unlock()
				return
			}
			o.job.Elapsed = now.Sub(o.startMono)
			o.notifyLocked()
			o.mu.Unlock()
		}
	}
}
