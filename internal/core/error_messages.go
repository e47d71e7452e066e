package core

// # Error Codes Reference
//
// User-facing error messages carry a code so a user can quote it when
// reporting a problem.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - No dataset: a run needs a loaded dataset
//	         Action: Load a dataset preview first
//	VAL002 - No steps: a run needs at least one enabled step or fill
//	         Action: Enable a transformation step
//	VAL003 - Target required: feature selection needs a target column
//	         Action: Choose a target column
//	VAL004 - Invalid input: unknown column, step type or fill strategy
//	         Action: Check the value and try again
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Backend unreachable
//	         Action: Check that the processing backend is running
//	NET002 - Backend timeout
//	         Action: Try again in a few moments
//
// # Backend Errors
//
//	SRV001 - The backend rejected a request. Message is the backend's text.
//	JOB001 - The backend reported the job as failed. Message is the job's
//	         error text.
//
// # Session Errors (STO001)
//
//	STO001 - The session store could not be read or written
//	         Action: Check the session store connection
//	         Patterns: "session store"
//
// # Table Errors (TBL001)
//
//	TBL001 - No transformed table, or nothing to export or save
//	         Action: Run the pipeline first
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error
//	         Action: Please try again or check the server logs
//
// Typed errors are matched first with errors.As/errors.Is. Anything left is
// matched case-insensitively against errorPatterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// Code prefixes used by the web layer to choose a status code.
const (
	CodeValidation = "VAL"
	CodeNetwork    = "NET"
	CodeServer     = "SRV"
	CodeJob        = "JOB"
	CodeStore      = "STO"
	CodeTable      = "TBL"
)

var validationMessages = map[string]UserMessage{
	job.FieldDataset: {
		Message: "No dataset selected",
		Action:  "Load a dataset preview first",
		Code:    "VAL001",
	},
	job.FieldSteps: {
		Message: "No transformation steps enabled",
		Action:  "Enable a transformation step",
		Code:    "VAL002",
	},
	job.FieldTarget: {
		Message: "Feature selection needs a target column",
		Action:  "Choose a target column",
		Code:    "VAL003",
	},
}

var (
	networkMessage = UserMessage{
		Message: "Could not reach the processing backend",
		Action:  "Check that the processing backend is running",
		Code:    "NET001",
	}
	timeoutMessage = UserMessage{
		Message: "The processing backend did not respond in time",
		Action:  "Try again in a few moments",
		Code:    "NET002",
	}
	tableMessage = UserMessage{
		Message: "There is no transformed table yet",
		Action:  "Run the pipeline first",
		Code:    "TBL001",
	}
	targetMessage = UserMessage{
		Message: "No export or save target is configured",
		Action:  "Configure the backend URL",
		Code:    "TBL001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors that reach MapError untyped, mostly wrapped
// driver errors from the session backends.
var errorPatterns = []errorPattern{
	{
		pattern: "session store",
		msg: UserMessage{
			Message: "The session could not be loaded or saved",
			Action:  "Check the session store connection",
			Code:    "STO001",
		},
	},
	{
		pattern: "connection refused",
		msg:     networkMessage,
	},
	{
		pattern: "context deadline exceeded",
		msg:     timeoutMessage,
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the server logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Server
// and job failures keep the backend's text verbatim.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *job.ValidationError
	if errors.As(err, &ve) {
		if msg, ok := validationMessages[ve.Field]; ok {
			return msg
		}
		return UserMessage{
			Message: ve.Message,
			Action:  "Check the value and try again",
			Code:    "VAL004",
		}
	}

	var ne *job.NetworkError
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return timeoutMessage
		}
		return networkMessage
	}

	var se *job.ServerError
	if errors.As(err, &se) {
		return UserMessage{
			Message: job.FailureMessage(se),
			Action:  "Review the request and try again",
			Code:    "SRV001",
		}
	}

	var jf *job.JobFailure
	if errors.As(err, &jf) {
		return UserMessage{
			Message: jf.Message,
			Action:  "Adjust the pipeline and run again",
			Code:    "JOB001",
		}
	}

	if errors.Is(err, ErrNoResult) || errors.Is(err, table.ErrNoRows) {
		return tableMessage
	}
	if errors.Is(err, table.ErrNoExporter) {
		return targetMessage
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutMessage
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with its user-friendly message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
