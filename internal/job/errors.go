package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/steps"
)

// ErrStaleResponse marks a response that belonged to a superseded run. It is
// only logged and counted, never shown to the user.
var ErrStaleResponse = errors.New("stale response discarded")

// Validation fields.
const (
	FieldDataset = "datasetRef"
	FieldSteps   = "steps"
	FieldTarget  = "target_column"
)

// ValidationError is returned synchronously by StartRun when the request is
// incomplete. No job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NetworkError is a transport failure while talking to the backend.
type NetworkError struct {
	Op      string
	Err     error
	timeout bool
}

// NewNetworkError wraps a transport error for op.
func NewNetworkError(op string, err error, timeout bool) *NetworkError {
	return &NetworkError{Op: op, Err: err, timeout: timeout}
}

func (e *NetworkError) Error() string {
	if e.timeout {
		return fmt.Sprintf("backend did not respond in time during %s", e.Op)
	}
	return fmt.Sprintf("could not reach backend during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *NetworkError) Timeout() bool { return e.timeout }

// ServerError is a non-2xx backend response. Message is the backend's
// detail or error text.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// JobFailure is a job the backend reported as failed.
type JobFailure struct {
	JobID   string
	Message string
}

func (e *JobFailure) Error() string {
	return e.Message
}

// FailureMessage is the text stored on a failed job. Server and job failures
// keep the backend's message verbatim.
func FailureMessage(err error) string {
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	var jf *JobFailure
	if errors.As(err, &jf) {
		return jf.Message
	}
	return err.Error()
}

// Validate checks a run request before any network call.
func Validate(req RunRequest) error {
	if strings.TrimSpace(req.DatasetRef) == "" {
		return &ValidationError{Field: FieldDataset, Message: "no dataset selected"}
	}
	if len(req.Steps) == 0 {
		return &ValidationError{Field: FieldSteps, Message: "no steps enabled"}
	}
	if steps.HasType(req.Steps, steps.TypeFeatureSelection) && strings.TrimSpace(req.TargetColumn) == "" {
		return &ValidationError{Field: FieldTarget, Message: "feature selection needs a target column"}
	}
	return nil
}
