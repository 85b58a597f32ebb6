package routes

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/omex-energy/omex/pkg/coordinator"
	"github.com/omex-energy/omex/pkg/db/models"
	"github.com/omex-energy/omex/pkg/oapi/schemas"
	"github.com/omex-energy/omex/pkg/oerr"
	"github.com/omex-energy/omex/pkg/orchestrator"
)

// SubmitJobInput defines the input for job submission
type SubmitJobInput struct {
	Body schemas.JobInput
}

// SubmitJobOutput is the response for submitting a job
type SubmitJobOutput struct {
	Body schemas.JobStatusResponse
}

// JobIDInput identifies a job by path parameter
type JobIDInput struct {
	JobID string `path:"jobId" doc:"Job ID"`
}

// GetJobOutput is the response for getting a job
type GetJobOutput struct {
	Body schemas.JobResponse
}

// GetJobStatusOutput is the response for getting a job's status
type GetJobStatusOutput struct {
	Body schemas.JobStatusResponse
}

// GetJobResultOutput is the response for getting a job's output
type GetJobResultOutput struct {
	Body schemas.JobResultResponse
}

// GetJobLogsOutput is the response for getting a job's logs
type GetJobLogsOutput struct {
	Body schemas.JobLogsResponse
}

// DeleteJobOutput is the response for deleting a job
type DeleteJobOutput struct {
	Body schemas.JobDeleteResponse
}

// ListJobsOutput is the response for listing jobs
type ListJobsOutput struct {
	Body struct {
		Jobs []schemas.JobSummary `json:"jobs" doc:"List of jobs"`
	}
}

// ListUserJobsInput filters the job list by user
type ListUserJobsInput struct {
	UserName string `path:"userName" doc:"User name"`
}

// ListProjectJobsInput filters the job list by project
type ListProjectJobsInput struct {
	ProjectName string `path:"projectName" doc:"Project name"`
}

// RegisterJobs registers the job routes
func RegisterJobs(api huma.API, coord *coordinator.Coordinator) {
	// Submit job
	huma.Register(api, huma.Operation{
		OperationID: "submit-job",
		Method:      http.MethodPost,
		Path:        "/jobs",
		Summary:     "Start a new job",
		Description: "Submit a workflow job for execution. 'input_params' can have lists and (nested) dicts as values.",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *SubmitJobInput) (*SubmitJobOutput, error) {
		if input.Body.JobName == "" {
			return nil, huma.Error400BadRequest("job_name is required")
		}
		if input.Body.WorkflowType == "" {
			return nil, huma.Error400BadRequest("workflow_type is required")
		}

		esdl, err := base64.StdEncoding.DecodeString(input.Body.InputESDL)
		if err != nil {
			return nil, huma.Error400BadRequest("input_esdl is not valid base64")
		}

		timeout := input.Body.TimeoutAfterS
		if timeout <= 0 {
			timeout = 3600
		}

		jobID, status, err := coord.SubmitJob(ctx, coordinator.SubmitInput{
			JobName:       input.Body.JobName,
			WorkflowType:  input.Body.WorkflowType,
			UserName:      input.Body.UserName,
			ProjectName:   input.Body.ProjectName,
			InputESDL:     string(esdl),
			InputParams:   input.Body.InputParams,
			TimeoutAfterS: timeout,
			Priority:      orchestrator.Priority(input.Body.JobPriority),
		})
		if err != nil {
			return nil, translateError(err)
		}

		resp := &SubmitJobOutput{}
		resp.Body = schemas.JobStatusResponse{JobID: jobID.String(), Status: status}
		return resp, nil
	})

	// List jobs
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Description: "Return a summary of all jobs",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *struct{}) (*ListJobsOutput, error) {
		jobs, err := coord.ListJobs(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		return listOutput(jobs), nil
	})

	// List jobs by user
	huma.Register(api, huma.Operation{
		OperationID: "list-user-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs/user/{userName}",
		Summary:     "List jobs of a user",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *ListUserJobsInput) (*ListJobsOutput, error) {
		jobs, err := coord.ListJobsByUser(ctx, input.UserName)
		if err != nil {
			return nil, translateError(err)
		}
		return listOutput(jobs), nil
	})

	// List jobs by project
	huma.Register(api, huma.Operation{
		OperationID: "list-project-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs/project/{projectName}",
		Summary:     "List jobs of a project",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *ListProjectJobsInput) (*ListJobsOutput, error) {
		jobs, err := coord.ListJobsByProject(ctx, input.ProjectName)
		if err != nil {
			return nil, translateError(err)
		}
		return listOutput(jobs), nil
	})

	// Get job
	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}",
		Summary:     "Get job details",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *JobIDInput) (*GetJobOutput, error) {
		jobID, err := parseJobID(input.JobID)
		if err != nil {
			return nil, err
		}

		job, err := coord.GetJob(ctx, jobID)
		if err != nil {
			return nil, translateError(err)
		}
		if job == nil {
			return nil, huma.Error404NotFound(fmt.Sprintf("unknown job %s", input.JobID))
		}

		resp := &GetJobOutput{Body: jobToResponse(job)}
		return resp, nil
	})

	// Delete job
	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{jobId}",
		Summary:     "Delete a job",
		Description: "Cancel the job if it is still running, then remove its record",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *JobIDInput) (*DeleteJobOutput, error) {
		jobID, err := parseJobID(input.JobID)
		if err != nil {
			return nil, err
		}

		deleted, err := coord.DeleteJob(ctx, jobID)
		if err != nil {
			return nil, translateError(err)
		}

		resp := &DeleteJobOutput{}
		resp.Body = schemas.JobDeleteResponse{JobID: jobID.String(), Deleted: deleted}
		return resp, nil
	})

	// Get job status
	huma.Register(api, huma.Operation{
		OperationID: "get-job-status",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}/status",
		Summary:     "Get job status",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *JobIDInput) (*GetJobStatusOutput, error) {
		jobID, err := parseJobID(input.JobID)
		if err != nil {
			return nil, err
		}

		status, found, err := coord.GetStatus(ctx, jobID)
		if err != nil {
			return nil, translateError(err)
		}
		if !found {
			return nil, huma.Error404NotFound(fmt.Sprintf("unknown job %s", input.JobID))
		}

		resp := &GetJobStatusOutput{}
		resp.Body = schemas.JobStatusResponse{JobID: jobID.String(), Status: status}
		return resp, nil
	})

	// Get job result
	huma.Register(api, huma.Operation{
		OperationID: "get-job-result",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}/result",
		Summary:     "Get job output ESDL",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *JobIDInput) (*GetJobResultOutput, error) {
		jobID, err := parseJobID(input.JobID)
		if err != nil {
			return nil, err
		}

		output, found, err := coord.GetOutputESDL(ctx, jobID)
		if err != nil {
			return nil, translateError(err)
		}
		if !found {
			return nil, huma.Error404NotFound(fmt.Sprintf("unknown job %s", input.JobID))
		}

		resp := &GetJobResultOutput{}
		resp.Body = schemas.JobResultResponse{JobID: jobID.String(), OutputESDL: encodeESDL(output)}
		return resp, nil
	})

	// Get job logs
	huma.Register(api, huma.Operation{
		OperationID: "get-job-logs",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}/logs",
		Summary:     "Get job logs",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *JobIDInput) (*GetJobLogsOutput, error) {
		jobID, err := parseJobID(input.JobID)
		if err != nil {
			return nil, err
		}

		logs, found, err := coord.GetLogs(ctx, jobID)
		if err != nil {
			return nil, translateError(err)
		}
		if !found {
			return nil, huma.Error404NotFound(fmt.Sprintf("unknown job %s", input.JobID))
		}

		resp := &GetJobLogsOutput{}
		resp.Body = schemas.JobLogsResponse{JobID: jobID.String(), Logs: logs}
		return resp, nil
	})
}

func parseJobID(raw string) (uuid.UUID, error) {
	jobID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest(fmt.Sprintf("invalid job id %q", raw))
	}
	return jobID, nil
}

// translateError maps coordinator error codes onto HTTP status codes.
func translateError(err error) error {
	switch oerr.CodeOf(err) {
	case oerr.CodeUnknownWorkflow, oerr.CodeMissingParameter, oerr.CodeInvalidParameter:
		return huma.Error400BadRequest(err.Error())
	case oerr.CodeUnsupportedParameterType:
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}

func listOutput(jobs []models.Job) *ListJobsOutput {
	out := &ListJobsOutput{}
	out.Body.Jobs = make([]schemas.JobSummary, len(jobs))
	for i, job := range jobs {
		out.Body.Jobs[i] = schemas.JobSummary{
			JobID:            job.JobID.String(),
			JobName:          job.JobName,
			WorkflowType:     job.WorkflowType,
			Status:           job.Status,
			ProgressFraction: job.ProgressFraction,
			RegisteredAt:     job.RegisteredAt.Format(time.RFC3339),
			RunningAt:        formatTime(job.RunningAt),
			StoppedAt:        formatTime(job.StoppedAt),
			UserName:         job.UserName,
			ProjectName:      job.ProjectName,
		}
	}
	return out
}

func jobToResponse(job *models.Job) schemas.JobResponse {
	return schemas.JobResponse{
		JobID:            job.JobID.String(),
		JobName:          job.JobName,
		WorkflowType:     job.WorkflowType,
		JobPriority:      job.JobPriority,
		Status:           job.Status,
		ProgressFraction: job.ProgressFraction,
		ProgressMessage:  job.ProgressMessage,
		RegisteredAt:     job.RegisteredAt.Format(time.RFC3339),
		SubmittedAt:      formatTime(job.SubmittedAt),
		RunningAt:        formatTime(job.RunningAt),
		StoppedAt:        formatTime(job.StoppedAt),
		TimeoutAfterS:    job.TimeoutAfterS,
		UserName:         job.UserName,
		ProjectName:      job.ProjectName,
		InputParams:      job.InputParams,
		InputESDL:        base64.StdEncoding.EncodeToString([]byte(job.InputESDL)),
		OutputESDL:       encodeESDL(job.OutputESDL),
		Logs:             job.Logs,
		EsdlFeedback:     job.EsdlFeedback,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}

func encodeESDL(esdl *string) *string {
	if esdl == nil {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(*esdl))
	return &encoded
}
