// Package coordinator drives the job lifecycle: it submits work to the
// orchestrator, receives its asynchronous callbacks, maps them onto
// legal store transitions, and serves cancel/delete/query operations.
package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omex-energy/omex/pkg/db/models"
	"github.com/omex-energy/omex/pkg/jobstore"
	"github.com/omex-energy/omex/pkg/kv"
	"github.com/omex-energy/omex/pkg/oerr"
	"github.com/omex-energy/omex/pkg/olog"
	"github.com/omex-energy/omex/pkg/orchestrator"
	"github.com/omex-energy/omex/pkg/workflow"
)

const (
	initialProgressMessage = "Job registered."

	schemaCacheKey = "omex:workflow:schemas"
)

// SubmitInput is everything needed to start a new job. InputESDL is the
// decoded payload; the HTTP layer strips the base64 wire encoding.
type SubmitInput struct {
	JobName       string
	WorkflowType  string
	UserName      string
	ProjectName   string
	InputESDL     string
	InputParams   map[string]any
	TimeoutAfterS int
	Priority      orchestrator.Priority
}

// callbackSet is one job's registered handlers. Handlers are registered
// at submission and dropped when a terminal result arrives.
type callbackSet struct {
	onStatus   func(ctx context.Context, jobID uuid.UUID, status orchestrator.Status) error
	onProgress func(ctx context.Context, jobID uuid.UUID, fraction float64, message string) error
	onFinished func(ctx context.Context, jobID uuid.UUID, result orchestrator.Result) error
}

// Coordinator owns the decision of which status a record may transition
// to. It holds no shared mutable state beyond the registration table,
// which is safe for concurrent insertion and lookup.
type Coordinator struct {
	store   *jobstore.Store
	catalog *workflow.Catalog
	orch    orchestrator.Orchestrator
	cache   kv.Store
	ttl     time.Duration
	log     *olog.Logger

	mu            sync.RWMutex
	registrations map[uuid.UUID]callbackSet
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSchemaCache caches the computed workflow form schemas in the
// given store for ttl.
func WithSchemaCache(cache kv.Store, ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.cache = cache
		c.ttl = ttl
	}
}

func New(store *jobstore.Store, catalog *workflow.Catalog, orch orchestrator.Orchestrator, log *olog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		catalog:       catalog,
		orch:          orch,
		log:           log.Named("coordinator"),
		registrations: make(map[uuid.UUID]callbackSet),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitJob resolves the workflow, translates the form values, forwards
// the job to the orchestrator and persists the initial record. When the
// orchestrator rejects the submission no record is written. When the
// orchestrator accepts but persistence fails, the remote job is
// orphaned; there is no compensating cancel, only an error-level log.
func (c *Coordinator) SubmitJob(ctx context.Context, in SubmitInput) (uuid.UUID, models.JobStatus, error) {
	def, ok := c.catalog.Resolve(in.WorkflowType)
	if !ok {
		return uuid.Nil, "", oerr.Newf(oerr.CodeUnknownWorkflow, "unknown workflow type %q", in.WorkflowType)
	}

	params, err := workflow.FormValuesToParams(def, in.InputParams)
	if err != nil {
		return uuid.Nil, "", err
	}

	priority := in.Priority
	if priority == "" {
		priority = orchestrator.PriorityMedium
	}

	jobID, err := c.orch.Submit(ctx, orchestrator.SubmissionRequest{
		ESDL:         in.InputESDL,
		Reference:    in.JobName,
		Params:       params,
		WorkflowType: def.Name,
		Timeout:      time.Duration(in.TimeoutAfterS) * time.Second,
		Priority:     priority,
	}, c.routerCallbacks())
	if err != nil {
		return uuid.Nil, "", err
	}

	c.register(jobID)

	job := &models.Job{
		JobID:            jobID,
		JobName:          in.JobName,
		WorkflowType:     def.Name,
		JobPriority:      string(priority),
		UserName:         in.UserName,
		ProjectName:      in.ProjectName,
		Status:           models.StatusRegistered,
		ProgressFraction: 0,
		ProgressMessage:  initialProgressMessage,
		RegisteredAt:     time.Now(),
		TimeoutAfterS:    in.TimeoutAfterS,
		InputParams:      in.InputParams,
		InputESDL:        in.InputESDL,
	}
	if err := c.store.Create(ctx, job); err != nil {
		// The remote job keeps running without a local record. Known
		// open risk: no compensating cancel is attempted.
		c.log.Error("job accepted by orchestrator but not persisted",
			"job_id", jobID, "error", err)
		c.deregister(jobID)
		return uuid.Nil, "", err
	}

	c.log.Info("job submitted", "job_id", jobID, "workflow_type", def.Name,
		"user", in.UserName, "project", in.ProjectName)
	return jobID, models.StatusRegistered, nil
}

// OnStatusUpdate maps the orchestrator's status vocabulary onto store
// transitions. FINISHED maps provisionally to succeeded; a later result
// event may overwrite it with a more specific terminal status. An
// unmapped value is a protocol mismatch and fails fatally.
func (c *Coordinator) OnStatusUpdate(ctx context.Context, jobID uuid.UUID, status orchestrator.Status) error {
	c.log.Debug("status update", "job_id", jobID, "status", status)

	var (
		matched bool
		err     error
	)
	switch status {
	case orchestrator.StatusRegistered:
		matched, err = c.store.SetRegistered(ctx, jobID)
	case orchestrator.StatusEnqueued:
		matched, err = c.store.SetEnqueued(ctx, jobID)
	case orchestrator.StatusRunning:
		matched, err = c.store.SetRunning(ctx, jobID)
	case orchestrator.StatusFinished:
		matched, err = c.store.SetStopped(ctx, jobID, models.StatusSucceeded, jobstore.StopInfo{})
	case orchestrator.StatusCancelled:
		matched, err = c.store.SetStopped(ctx, jobID, models.StatusCancelled, jobstore.StopInfo{})
	default:
		return oerr.Newf(oerr.CodeUnknownLifecycleStatus, "unknown update status %q", status)
	}
	if err != nil {
		return err
	}
	if !matched {
		c.log.Warn("status update for unknown job", "job_id", jobID, "status", status)
	}
	return nil
}

// OnProgressUpdate overwrites the stored progress unconditionally.
func (c *Coordinator) OnProgressUpdate(ctx context.Context, jobID uuid.UUID, fraction float64, message string) error {
	matched, err := c.store.SetProgress(ctx, jobID, fraction, message)
	if err != nil {
		return err
	}
	if !matched {
		c.log.Warn("progress update for unknown job", "job_id", jobID)
	}
	return nil
}

// OnFinished maps the result type onto the terminal status and stores
// the diagnostic output. An unrecognized result type fails fatally.
func (c *Coordinator) OnFinished(ctx context.Context, jobID uuid.UUID, result orchestrator.Result) error {
	var final models.JobStatus
	switch result.Type {
	case orchestrator.ResultSucceeded:
		final = models.StatusSucceeded
	case orchestrator.ResultTimeout:
		final = models.StatusTimeout
	case orchestrator.ResultError:
		final = models.StatusError
	case orchestrator.ResultCancelled:
		final = models.StatusCancelled
	default:
		return oerr.Newf(oerr.CodeUnknownResultType, "unknown result type %q", result.Type)
	}

	c.log.Debug("job finished", "job_id", jobID, "result_type", result.Type)

	info := jobstore.StopInfo{Feedback: groupFeedback(result.Messages)}
	if result.Logs != "" {
		info.Logs = &result.Logs
	}
	if result.OutputESDL != "" {
		info.OutputESDL = &result.OutputESDL
	}

	matched, err := c.store.SetStopped(ctx, jobID, final, info)
	if err != nil {
		return err
	}
	if !matched {
		c.log.Warn("result for unknown job", "job_id", jobID, "result_type", result.Type)
	}

	// The orchestrator delivers nothing after the result; drop the
	// registration.
	c.deregister(jobID)
	return nil
}

// CancelJob requests cancellation of a job. An unknown job is not an
// error. The actual transition to cancelled arrives later through the
// status/result callbacks; cancelling an already-terminal job is
// accepted and the engine is expected to no-op.
func (c *Coordinator) CancelJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	def, ok := c.catalog.Resolve(job.WorkflowType)
	if !ok {
		return false, oerr.Newf(oerr.CodeUnknownWorkflow,
			"job %s references unknown workflow type %q", jobID, job.WorkflowType)
	}

	if err := c.orch.Cancel(ctx, jobID, def.Name); err != nil {
		return false, err
	}
	c.log.Info("cancel requested", "job_id", jobID)
	return true, nil
}

// DeleteJob cancels best-effort, then removes the record. The remote
// job may keep running briefly after the record disappears; accepted
// race, observed only as zero-row callback updates.
func (c *Coordinator) DeleteJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if _, err := c.CancelJob(ctx, jobID); err != nil {
		c.log.Warn("cancel before delete failed", "job_id", jobID, "error", err)
	}
	c.deregister(jobID)
	return c.store.Delete(ctx, jobID)
}

// GetJob returns the full record, nil when unknown.
func (c *Coordinator) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return c.store.Get(ctx, jobID)
}

// GetStatus returns the current status and whether the job exists.
func (c *Coordinator) GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error) {
	return c.store.GetStatus(ctx, jobID)
}

// GetOutputESDL returns the output payload of a finished job.
func (c *Coordinator) GetOutputESDL(ctx context.Context, jobID uuid.UUID) (*string, bool, error) {
	return c.store.GetOutputESDL(ctx, jobID)
}

// GetLogs returns the logs of a finished job.
func (c *Coordinator) GetLogs(ctx context.Context, jobID uuid.UUID) (*string, bool, error) {
	return c.store.GetLogs(ctx, jobID)
}

// ListJobs returns summaries of all jobs.
func (c *Coordinator) ListJobs(ctx context.Context) ([]models.Job, error) {
	return c.store.List(ctx)
}

// ListJobsByUser returns summaries of one user's jobs.
func (c *Coordinator) ListJobsByUser(ctx context.Context, userName string) ([]models.Job, error) {
	return c.store.ListByUser(ctx, userName)
}

// ListJobsByProject returns summaries of one project's jobs.
func (c *Coordinator) ListJobsByProject(ctx context.Context, projectName string) ([]models.Job, error) {
	return c.store.ListByProject(ctx, projectName)
}

// DescribeWorkflows returns the form schemas for every catalog entry.
// Schemas are static per process, so they are cached when a cache store
// is configured. Cache failures degrade to recomputation.
func (c *Coordinator) DescribeWorkflows(ctx context.Context) ([]workflow.FormSchema, error) {
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, schemaCacheKey); err == nil {
			var schemas []workflow.FormSchema
			if err := json.Unmarshal(raw, &schemas); err == nil {
				return schemas, nil
			}
			c.log.Warn("discarding malformed cached schemas")
		} else if err != kv.ErrNotFound {
			c.log.Warn("schema cache read failed", "error", err)
		}
	}

	schemas, err := workflow.FormSchemas(c.catalog.All())
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if raw, err := json.Marshal(schemas); err == nil {
			if err := c.cache.Set(ctx, schemaCacheKey, raw, c.ttl); err != nil {
				c.log.Warn("schema cache write failed", "error", err)
			}
		}
	}
	return schemas, nil
}

// routerCallbacks adapts the exported handlers into the per-job
// callback shape the orchestrator delivers on. Unregistered deliveries
// (after restart, or racing a delete) are still applied; the store's
// zero-row handling reports them.
func (c *Coordinator) routerCallbacks() orchestrator.Callbacks {
	return orchestrator.Callbacks{
		OnStatus: func(jobID uuid.UUID, status orchestrator.Status) {
			cb := c.lookup(jobID)
			if err := cb.onStatus(context.Background(), jobID, status); err != nil {
				c.log.Error("status update failed", "job_id", jobID, "status", status, "error", err)
			}
		},
		OnProgress: func(jobID uuid.UUID, fraction float64, message string) {
			cb := c.lookup(jobID)
			if err := cb.onProgress(context.Background(), jobID, fraction, message); err != nil {
				c.log.Error("progress update failed", "job_id", jobID, "error", err)
			}
		},
		OnFinished: func(jobID uuid.UUID, result orchestrator.Result) {
			cb := c.lookup(jobID)
			if err := cb.onFinished(context.Background(), jobID, result); err != nil {
				c.log.Error("result handling failed", "job_id", jobID, "error", err)
			}
		},
	}
}

func (c *Coordinator) register(jobID uuid.UUID) {
	c.mu.Lock()
	c.registrations[jobID] = callbackSet{
		onStatus:   c.OnStatusUpdate,
		onProgress: c.OnProgressUpdate,
		onFinished: c.OnFinished,
	}
	c.mu.Unlock()
}

func (c *Coordinator) deregister(jobID uuid.UUID) {
	c.mu.Lock()
	delete(c.registrations, jobID)
	c.mu.Unlock()
}

func (c *Coordinator) lookup(jobID uuid.UUID) callbackSet {
	c.mu.RLock()
	cb, ok := c.registrations[jobID]
	c.mu.RUnlock()
	if ok {
		return cb
	}
	c.log.Debug("delivery for unregistered job", "job_id", jobID)
	return callbackSet{
		onStatus:   c.OnStatusUpdate,
		onProgress: c.OnProgressUpdate,
		onFinished: c.OnFinished,
	}
}

// groupFeedback groups the engine's feedback messages per ESDL object
// id, with "general" for messages carrying no object id.
func groupFeedback(messages []orchestrator.EsdlMessage) models.EsdlFeedback {
	if len(messages) == 0 {
		return nil
	}
	feedback := make(models.EsdlFeedback)
	for _, msg := range messages {
		objectID := msg.ObjectID
		if objectID == "" {
			objectID = "general"
		}
		feedback[objectID] = append(feedback[objectID], models.FeedbackMessage{
			Message:  msg.TechnicalMessage,
			Severity: msg.Severity,
		})
	}
	return feedback
}
