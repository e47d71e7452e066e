// Package job runs a transformation pipeline on the remote backend and tracks
// the single current job through its lifecycle.
//
// The orchestrator owns three tasks per run: the status poller, the progress
// animator and the elapsed ticker. A run token (generation counter) is bumped
// on every StartRun and Reset; every write to shared state re-reads the token
// under the lock and drops work that belongs to a superseded run.
package job

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/steps"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusQueued    Status = "queued"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// rank orders statuses so transitions only move forward.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusPending:
		return 2
	case StatusRunning:
		return 3
	case StatusCompleted, StatusFailed:
		return 4
	default:
		return 0
	}
}

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether a run is in flight.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusPending || s == StatusRunning
}

// ParseStatus maps a backend status string. Unknown values are treated as
// running so polling continues.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusQueued:
		return StatusQueued
	case StatusPending:
		return StatusPending
	case StatusRunning:
		return StatusRunning
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Job is a snapshot of the current run. Snapshots are copies; the Result
// pointer is shared but never mutated.
type Job struct {
	ID         string                `json:"id,omitempty"`
	BackendID  string                `json:"job_id,omitempty"`
	Status     Status                `json:"status"`
	Progress   int                   `json:"progress"`
	Display    float64               `json:"display_progress"`
	Message    string                `json:"message,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at,omitempty"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	Elapsed    time.Duration         `json:"elapsed_ns"`
	Result     *diff.TransformResult `json:"-"`
}

// ElapsedSeconds is Elapsed rounded down to whole seconds.
func (j Job) ElapsedSeconds() int {
	return int(j.Elapsed / time.Second)
}

// RunRequest is the body sent to the backend to start a run.
type RunRequest struct {
	DatasetRef   string               `json:"datasetRef"`
	TargetColumn string               `json:"target_column,omitempty"`
	Steps        []steps.PipelineStep `json:"steps"`
}

// StatusResponse is one poll result.
type StatusResponse struct {
	Status   string                `json:"status"`
	Progress float64               `json:"progress"`
	Message  string                `json:"message"`
	Error    string                `json:"error,omitempty"`
	Result   *diff.TransformResult `json:"result,omitempty"`
}

// Backend is the remote processing service.
type Backend interface {
	StartRun(ctx context.Context, req RunRequest) (string, error)
	Status(ctx context.Context, jobID string) (StatusResponse, error)
}

// Observer receives lifecycle events. Methods are called with the
// orchestrator lock held and must not block.
type Observer interface {
	RunStarted()
	RunFinished(status Status, elapsed time.Duration)
	StaleDiscarded(source string)
	PollCompleted(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) RunStarted()                        {}
func (nopObserver) RunFinished(Status, time.Duration)  {}
func (nopObserver) StaleDiscarded(string)              {}
func (nopObserver) PollCompleted(time.Duration, error) {}

func clampProgress(p float64) int {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}
