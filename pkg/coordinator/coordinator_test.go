package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/omex-energy/omex/pkg/db/models"
	"github.com/omex-energy/omex/pkg/jobstore"
	"github.com/omex-energy/omex/pkg/kv"
	"github.com/omex-energy/omex/pkg/oerr"
	"github.com/omex-energy/omex/pkg/olog"
	"github.com/omex-energy/omex/pkg/orchestrator"
	"github.com/omex-energy/omex/pkg/workflow"
)

// fakeOrchestrator records submissions and cancellations and hands the
// registered callbacks back to the test.
type fakeOrchestrator struct {
	mu         sync.Mutex
	submitErr  error
	cancelErr  error
	submitted  []orchestrator.SubmissionRequest
	cancelled  []uuid.UUID
	cancelWfts []string
	callbacks  orchestrator.Callbacks
}

func (f *fakeOrchestrator) Submit(_ context.Context, req orchestrator.SubmissionRequest, cb orchestrator.Callbacks) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return uuid.Nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.callbacks = cb
	return uuid.New(), nil
}

func (f *fakeOrchestrator) Cancel(_ context.Context, jobID uuid.UUID, workflowType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, jobID)
	f.cancelWfts = append(f.cancelWfts, workflowType)
	return nil
}

func (f *fakeOrchestrator) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeOrchestrator) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

func newTestStore(t *testing.T) *jobstore.Store {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bundb := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bundb.Close() })

	_, err = bundb.NewCreateTable().Model((*models.Job)(nil)).Exec(context.Background())
	require.NoError(t, err)

	return jobstore.New(bundb, olog.NewDefault())
}

func newTestCoordinator(t *testing.T, orch orchestrator.Orchestrator) *Coordinator {
	t.Helper()
	return New(newTestStore(t), workflow.DefaultCatalog(), orch, olog.NewDefault())
}

func submitInput() SubmitInput {
	return SubmitInput{
		JobName:      "district heating study",
		WorkflowType: "grow_optimizer",
		UserName:     "alex",
		ProjectName:  "utrecht",
		InputESDL:    "<esdl/>",
		InputParams: map[string]any{
			"start_time":       "2019-01-01T00:00:00Z",
			"end_time":         "2020-01-01T00:00:00Z",
			"time_step":        3600.0,
			"objective":        "cost",
			"include_pressure": false,
		},
		TimeoutAfterS: 3600,
	}
}

func TestSubmitJob(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, status, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, status)
	require.NotEqual(t, uuid.Nil, jobID)

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, models.StatusRegistered, job.Status)
	assert.Equal(t, "grow_optimizer", job.WorkflowType)
	assert.Equal(t, "medium", job.JobPriority)
	assert.False(t, job.RegisteredAt.IsZero())
	assert.Nil(t, job.SubmittedAt)

	require.Equal(t, 1, fake.submitCount())
	req := fake.submitted[0]
	assert.Equal(t, "<esdl/>", req.ESDL)
	assert.Equal(t, "district heating study", req.Reference)
	assert.Equal(t, time.Hour, req.Timeout)
	assert.Equal(t, orchestrator.PriorityMedium, req.Priority)
	// form values arrive typed on the orchestrator side
	assert.Equal(t, time.Hour, req.Params["time_step"])
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), req.Params["start_time"])

	// registration exists until a result arrives
	coord.mu.RLock()
	_, registered := coord.registrations[jobID]
	coord.mu.RUnlock()
	assert.True(t, registered)
}

func TestSubmitJob_UnknownWorkflow(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)

	_, _, err := coord.SubmitJob(context.Background(), SubmitInput{
		JobName:      "job",
		WorkflowType: "does_not_exist",
	})
	require.Error(t, err)
	assert.True(t, oerr.IsCode(err, oerr.CodeUnknownWorkflow))
	assert.Equal(t, 0, fake.submitCount())

	jobs, err := coord.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitJob_MissingParameter(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)

	in := submitInput()
	delete(in.InputParams, "time_step")

	_, _, err := coord.SubmitJob(context.Background(), in)
	require.Error(t, err)
	assert.True(t, oerr.IsCode(err, oerr.CodeMissingParameter))
	assert.Equal(t, 0, fake.submitCount())
}

func TestSubmitJob_OrchestratorFailure(t *testing.T) {
	fake := &fakeOrchestrator{submitErr: errors.New("broker unreachable")}
	coord := newTestCoordinator(t, fake)

	_, _, err := coord.SubmitJob(context.Background(), submitInput())
	require.Error(t, err)

	jobs, err := coord.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestOnStatusUpdate_Lifecycle(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	require.NoError(t, coord.OnStatusUpdate(ctx, jobID, orchestrator.StatusEnqueued))
	require.NoError(t, coord.OnStatusUpdate(ctx, jobID, orchestrator.StatusRunning))
	require.NoError(t, coord.OnProgressUpdate(ctx, jobID, 0.5, "halfway"))

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status)
	require.NotNil(t, job.SubmittedAt)
	require.NotNil(t, job.RunningAt)
	assert.Equal(t, 0.5, job.ProgressFraction)
	assert.Equal(t, "halfway", job.ProgressMessage)
	assert.Nil(t, job.StoppedAt)
}

func TestOnStatusUpdate_UnknownVocabulary(t *testing.T) {
	coord := newTestCoordinator(t, &fakeOrchestrator{})

	err := coord.OnStatusUpdate(context.Background(), uuid.New(), orchestrator.Status("EXPLODED"))
	require.Error(t, err)
	assert.True(t, oerr.IsCode(err, oerr.CodeUnknownLifecycleStatus))
}

func TestOnStatusUpdate_UnknownJobIsNotAnError(t *testing.T) {
	coord := newTestCoordinator(t, &fakeOrchestrator{})

	err := coord.OnStatusUpdate(context.Background(), uuid.New(), orchestrator.StatusRunning)
	require.NoError(t, err)
}

// A FINISHED status update is a provisional succeeded; the later result
// event may overwrite it with the specific terminal status without
// moving stopped_at.
func TestFinishedThenResultOverwrite(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	require.NoError(t, coord.OnStatusUpdate(ctx, jobID, orchestrator.StatusFinished))

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, job.Status)
	require.NotNil(t, job.StoppedAt)
	firstStop := *job.StoppedAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, coord.OnFinished(ctx, jobID, orchestrator.Result{
		Type: orchestrator.ResultError,
		Logs: "boom",
	}))

	job, err = coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, job.Status)
	require.NotNil(t, job.Logs)
	assert.Equal(t, "boom", *job.Logs)
	assert.Nil(t, job.OutputESDL)
	assert.Equal(t, firstStop, *job.StoppedAt)
}

// The reverse order is tolerated too: when the result event lands
// first, a late FINISHED status update re-runs the terminal write with
// empty diagnostics. Status reverts to the provisional succeeded and
// logs/output are nulled (last write wins); stopped_at stays put.
func TestResultThenLateFinishedStatus(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	require.NoError(t, coord.OnFinished(ctx, jobID, orchestrator.Result{
		Type:       orchestrator.ResultError,
		Logs:       "boom",
		OutputESDL: "<esdl-out/>",
	}))

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.StoppedAt)
	firstStop := *job.StoppedAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, coord.OnStatusUpdate(ctx, jobID, orchestrator.StatusFinished))

	job, err = coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, job.Status)
	assert.Nil(t, job.Logs)
	assert.Nil(t, job.OutputESDL)
	assert.Equal(t, firstStop, *job.StoppedAt)
}

func TestOnStatusUpdate_Cancelled(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	require.NoError(t, coord.OnStatusUpdate(ctx, jobID, orchestrator.StatusCancelled))

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, job.Status)
	require.NotNil(t, job.StoppedAt)
	assert.True(t, job.Status.Terminal())
}

func TestOnFinished_Success(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	require.NoError(t, coord.OnFinished(ctx, jobID, orchestrator.Result{
		Type:       orchestrator.ResultSucceeded,
		Logs:       "all good",
		OutputESDL: "<esdl-out/>",
		Messages: []orchestrator.EsdlMessage{
			{ObjectID: "pipe-1", TechnicalMessage: "head loss high", Severity: "WARNING"},
			{TechnicalMessage: "converged in 12 iterations", Severity: "INFO"},
		},
	}))

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, job.Status)
	require.NotNil(t, job.OutputESDL)
	assert.Equal(t, "<esdl-out/>", *job.OutputESDL)
	require.Contains(t, job.EsdlFeedback, "pipe-1")
	require.Contains(t, job.EsdlFeedback, "general")
	assert.Equal(t, "converged in 12 iterations", job.EsdlFeedback["general"][0].Message)

	// registration dropped after the result
	coord.mu.RLock()
	_, registered := coord.registrations[jobID]
	coord.mu.RUnlock()
	assert.False(t, registered)
}

func TestOnFinished_UnknownResultType(t *testing.T) {
	coord := newTestCoordinator(t, &fakeOrchestrator{})

	err := coord.OnFinished(context.Background(), uuid.New(), orchestrator.Result{
		Type: orchestrator.ResultType("MELTED"),
	})
	require.Error(t, err)
	assert.True(t, oerr.IsCode(err, oerr.CodeUnknownResultType))
}

func TestCancelJob_NotFound(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)

	found, err := coord.CancelJob(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, fake.cancelCount())
}

func TestCancelJob(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	found, err := coord.CancelJob(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)

	require.Equal(t, 1, fake.cancelCount())
	assert.Equal(t, jobID, fake.cancelled[0])
	assert.Equal(t, "grow_optimizer", fake.cancelWfts[0])

	// cancel does not transition locally; that arrives via callbacks
	status, _, err := coord.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, status)
}

func TestDeleteJob_CancelFailureStillDeletes(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	fake.cancelErr = errors.New("broker unreachable")

	deleted, err := coord.DeleteJob(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, deleted)

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDeleteJob_TerminalJob(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)
	require.NoError(t, coord.OnFinished(ctx, jobID, orchestrator.Result{Type: orchestrator.ResultSucceeded}))

	deleted, err := coord.DeleteJob(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = coord.DeleteJob(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRegisteredCallbacksDriveTheStore(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	jobID, _, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)

	fake.callbacks.OnStatus(jobID, orchestrator.StatusRunning)
	fake.callbacks.OnProgress(jobID, 0.25, "warming up")
	fake.callbacks.OnFinished(jobID, orchestrator.Result{Type: orchestrator.ResultTimeout, Logs: "deadline"})

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, job.Status)
	assert.Equal(t, 0.25, job.ProgressFraction)
	require.NotNil(t, job.Logs)
	assert.Equal(t, "deadline", *job.Logs)

	// a delivery for a job nobody registered must not panic
	fake.callbacks.OnStatus(uuid.New(), orchestrator.StatusRunning)
}

func TestListDelegations(t *testing.T) {
	fake := &fakeOrchestrator{}
	coord := newTestCoordinator(t, fake)
	ctx := context.Background()

	first := submitInput()
	second := submitInput()
	second.UserName = "sam"
	second.ProjectName = "amsterdam"

	_, _, err := coord.SubmitJob(ctx, first)
	require.NoError(t, err)
	_, _, err = coord.SubmitJob(ctx, second)
	require.NoError(t, err)

	all, err := coord.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byUser, err := coord.ListJobsByUser(ctx, "sam")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	byProject, err := coord.ListJobsByProject(ctx, "utrecht")
	require.NoError(t, err)
	assert.Len(t, byProject, 1)
}

func TestDescribeWorkflows_Cached(t *testing.T) {
	fake := &fakeOrchestrator{}
	cache := kv.NewMemoryStore()
	coord := New(newTestStore(t), workflow.DefaultCatalog(), fake, olog.NewDefault(),
		WithSchemaCache(cache, time.Minute))
	ctx := context.Background()

	schemas, err := coord.DescribeWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, schemas, 4)

	_, err = cache.Get(ctx, schemaCacheKey)
	require.NoError(t, err, "schemas should be cached after the first call")

	again, err := coord.DescribeWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(schemas), len(again))
}

// End to end against the simulated backend: submit, let the callbacks
// drive the record to succeeded, check the output landed.
func TestCoordinatorWithLocalOrchestrator(t *testing.T) {
	local := orchestrator.NewLocal(olog.NewDefault(), 20*time.Millisecond)
	coord := New(newTestStore(t), workflow.DefaultCatalog(), local, olog.NewDefault())
	ctx := context.Background()

	jobID, status, err := coord.SubmitJob(ctx, submitInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, status)

	require.Eventually(t, func() bool {
		current, found, err := coord.GetStatus(ctx, jobID)
		return err == nil && found && current == models.StatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	output, found, err := coord.GetOutputESDL(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, output)
	assert.Equal(t, "<esdl/>", *output)

	job, err := coord.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.StoppedAt)
	assert.True(t, job.Status.Terminal())
}
