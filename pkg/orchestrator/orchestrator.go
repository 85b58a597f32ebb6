// Package orchestrator defines the contract of the external workflow
// execution engine: submission, cancellation and the asynchronous
// status/progress/result callbacks it delivers.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle vocabulary the orchestrator reports.
type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusEnqueued   Status = "ENQUEUED"
	StatusRunning    Status = "RUNNING"
	StatusFinished   Status = "FINISHED"
	StatusCancelled  Status = "CANCELLED"
)

// ResultType is the terminal outcome vocabulary carried by a Result.
type ResultType string

const (
	ResultSucceeded ResultType = "SUCCEEDED"
	ResultTimeout   ResultType = "TIMEOUT"
	ResultError     ResultType = "ERROR"
	ResultCancelled ResultType = "CANCELLED"
)

// Priority of a submission. Scheduling semantics are owned by the engine.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// EsdlMessage is one feedback message about the submitted energy system.
type EsdlMessage struct {
	// ObjectID refers to the ESDL object the message is about; empty
	// for messages about the system as a whole.
	ObjectID         string
	TechnicalMessage string
	Severity         string
}

// Result is the final outcome of a job.
type Result struct {
	Type       ResultType
	Logs       string
	OutputESDL string
	Messages   []EsdlMessage
}

// SubmissionRequest carries everything the engine needs to run a job.
type SubmissionRequest struct {
	ESDL         string
	Reference    string
	Params       map[string]any
	WorkflowType string
	Timeout      time.Duration
	Priority     Priority
}

// Callbacks receive the asynchronous events for a single job. They are
// invoked on orchestrator-owned goroutines, not tied to any request.
type Callbacks struct {
	OnStatus   func(jobID uuid.UUID, status Status)
	OnProgress func(jobID uuid.UUID, fraction float64, message string)
	OnFinished func(jobID uuid.UUID, result Result)
}

// Orchestrator is the consumed capability of the execution engine.
// Submit assigns the job id; at most one callback registration exists
// per job id.
type Orchestrator interface {
	Submit(ctx context.Context, req SubmissionRequest, cb Callbacks) (uuid.UUID, error)
	Cancel(ctx context.Context, jobID uuid.UUID, workflowType string) error
}
