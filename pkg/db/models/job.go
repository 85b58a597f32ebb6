package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JobStatus is the persisted job state machine:
// registered -> enqueued -> running -> {succeeded, timeout, error, cancelled}.
// cancelled is also reachable directly from any non-terminal state.
type JobStatus string

const (
	StatusRegistered JobStatus = "registered"
	StatusEnqueued   JobStatus = "enqueued"
	StatusRunning    JobStatus = "running"
	StatusSucceeded  JobStatus = "succeeded"
	StatusCancelled  JobStatus = "cancelled"
	StatusTimeout    JobStatus = "timeout"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further transition leaves this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusCancelled, StatusTimeout, StatusError:
		return true
	}
	return false
}

// FeedbackMessage is a single ESDL feedback entry attached to a finished job.
type FeedbackMessage struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// EsdlFeedback groups feedback messages per ESDL object id. Messages
// without an object id are grouped under "general".
type EsdlFeedback map[string][]FeedbackMessage

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	// Identifier assigned by the orchestrator at submission. Sole join
	// key between coordinator, store and orchestrator.
	JobID uuid.UUID `bun:"job_id,pk,type:uuid"`

	JobName      string `bun:"job_name,notnull"`
	WorkflowType string `bun:"workflow_type,notnull"`
	JobPriority  string `bun:"job_priority"`
	UserName     string `bun:"user_name,notnull"`
	ProjectName  string `bun:"project_name,notnull"`

	Status JobStatus `bun:"status,notnull"`

	// Last reported progress. Not guaranteed monotonic: callbacks are
	// applied in delivery order.
	ProgressFraction float64 `bun:"progress_fraction,notnull"`
	ProgressMessage  string  `bun:"progress_message,notnull"`

	// Each timestamp is stamped once, the first time the matching
	// transition is observed.
	RegisteredAt time.Time  `bun:"registered_at,notnull"`
	SubmittedAt  *time.Time `bun:"submitted_at"`
	RunningAt    *time.Time `bun:"running_at"`
	StoppedAt    *time.Time `bun:"stopped_at"`

	// Maximum run duration; enforced by the orchestrator, opaque here.
	TimeoutAfterS int `bun:"timeout_after_s"`

	InputParams map[string]any `bun:"input_params,type:jsonb"`

	// ESDL payloads are stored decoded; the HTTP layer base64-encodes
	// them on the wire.
	InputESDL  string  `bun:"input_esdl,notnull"`
	OutputESDL *string `bun:"output_esdl"`

	Logs         *string      `bun:"logs"`
	EsdlFeedback EsdlFeedback `bun:"esdl_feedback,type:jsonb"`
}
