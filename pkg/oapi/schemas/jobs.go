package schemas

import "github.com/omex-energy/omex/pkg/db/models"

// JobInput is the request body to start a new job. InputESDL is base64
// on the wire; input_params may carry lists and nested maps as values.
type JobInput struct {
	JobName       string         `json:"job_name" doc:"Job name"`
	WorkflowType  string         `json:"workflow_type" doc:"Workflow type to run"`
	UserName      string         `json:"user_name" doc:"User name of the job submitter"`
	ProjectName   string         `json:"project_name" doc:"Project the job belongs to"`
	InputESDL     string         `json:"input_esdl" doc:"Input ESDL as base64 string"`
	InputParams   map[string]any `json:"input_params,omitempty" doc:"Non-ESDL input parameters"`
	TimeoutAfterS int            `json:"timeout_after_s,omitempty" doc:"Maximum run duration in seconds" default:"3600"`
	JobPriority   string         `json:"job_priority,omitempty" enum:"low,medium,high" doc:"Scheduling priority"`
}

// JobStatusResponse reports the id/status pair.
type JobStatusResponse struct {
	JobID  string           `json:"job_id" doc:"Job ID"`
	Status models.JobStatus `json:"status" doc:"Current job status"`
}

// JobSummary is the projection used in job lists.
type JobSummary struct {
	JobID            string           `json:"job_id" doc:"Job ID"`
	JobName          string           `json:"job_name" doc:"Job name"`
	WorkflowType     string           `json:"workflow_type" doc:"Workflow type"`
	Status           models.JobStatus `json:"status" doc:"Current job status"`
	ProgressFraction float64          `json:"progress_fraction" doc:"Last reported progress (0-1)"`
	RegisteredAt     string           `json:"registered_at" doc:"Registration timestamp"`
	RunningAt        *string          `json:"running_at,omitempty" doc:"Start timestamp"`
	StoppedAt        *string          `json:"stopped_at,omitempty" doc:"Stop timestamp"`
	UserName         string           `json:"user_name" doc:"User name"`
	ProjectName      string           `json:"project_name" doc:"Project name"`
}

// JobResponse carries all job data. ESDL payloads are base64 encoded.
type JobResponse struct {
	JobID            string              `json:"job_id" doc:"Job ID"`
	JobName          string              `json:"job_name" doc:"Job name"`
	WorkflowType     string              `json:"workflow_type" doc:"Workflow type"`
	JobPriority      string              `json:"job_priority,omitempty" doc:"Scheduling priority"`
	Status           models.JobStatus    `json:"status" doc:"Current job status"`
	ProgressFraction float64             `json:"progress_fraction" doc:"Last reported progress (0-1)"`
	ProgressMessage  string              `json:"progress_message" doc:"Last reported progress message"`
	RegisteredAt     string              `json:"registered_at" doc:"Registration timestamp"`
	SubmittedAt      *string             `json:"submitted_at,omitempty" doc:"Enqueue timestamp"`
	RunningAt        *string             `json:"running_at,omitempty" doc:"Start timestamp"`
	StoppedAt        *string             `json:"stopped_at,omitempty" doc:"Stop timestamp"`
	TimeoutAfterS    int                 `json:"timeout_after_s" doc:"Maximum run duration in seconds"`
	UserName         string              `json:"user_name" doc:"User name"`
	ProjectName      string              `json:"project_name" doc:"Project name"`
	InputParams      map[string]any      `json:"input_params,omitempty" doc:"Non-ESDL input parameters"`
	InputESDL        string              `json:"input_esdl" doc:"Input ESDL as base64 string"`
	OutputESDL       *string             `json:"output_esdl,omitempty" doc:"Output ESDL as base64 string"`
	Logs             *string             `json:"logs,omitempty" doc:"Job logs"`
	EsdlFeedback     models.EsdlFeedback `json:"esdl_feedback,omitempty" doc:"Feedback messages per ESDL object id"`
}

// JobResultResponse carries the output payload of a finished job.
type JobResultResponse struct {
	JobID      string  `json:"job_id" doc:"Job ID"`
	OutputESDL *string `json:"output_esdl" doc:"Output ESDL as base64 string, null while not finished"`
}

// JobLogsResponse carries the logs of a finished job.
type JobLogsResponse struct {
	JobID string  `json:"job_id" doc:"Job ID"`
	Logs  *string `json:"logs" doc:"Job logs, null while not finished"`
}

// JobDeleteResponse reports whether a record was removed.
type JobDeleteResponse struct {
	JobID   string `json:"job_id" doc:"Job ID"`
	Deleted bool   `json:"deleted" doc:"Whether a record was removed"`
}
