package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omex-energy/omex/pkg/olog"
)

// Local is an in-process orchestrator backend that simulates the
// execution engine: it walks every submitted job through
// ENQUEUED -> RUNNING -> progress -> FINISHED on its own goroutine.
// Used when no broker is configured, and by tests.
type Local struct {
	log       *olog.Logger
	stepDelay time.Duration

	mu   sync.Mutex
	jobs map[uuid.UUID]*localJob
}

type localJob struct {
	cancelOnce sync.Once
	cancelled  chan struct{}
}

// NewLocal creates a simulated backend. stepDelay is the pause between
// lifecycle steps; keep it at zero in tests.
func NewLocal(log *olog.Logger, stepDelay time.Duration) *Local {
	return &Local{
		log:       log.Named("orchestrator.local"),
		stepDelay: stepDelay,
		jobs:      make(map[uuid.UUID]*localJob),
	}
}

// Submit assigns a job id and starts the simulated lifecycle.
func (l *Local) Submit(_ context.Context, req SubmissionRequest, cb Callbacks) (uuid.UUID, error) {
	jobID := uuid.New()

	job := &localJob{cancelled: make(chan struct{})}
	l.mu.Lock()
	l.jobs[jobID] = job
	l.mu.Unlock()

	l.log.Debug("job submitted", "job_id", jobID, "workflow_type", req.WorkflowType)
	go l.run(jobID, req, cb, job)

	return jobID, nil
}

// Cancel stops a simulated job. Unknown and already-finished jobs are
// a no-op, matching the engine's behavior.
func (l *Local) Cancel(_ context.Context, jobID uuid.UUID, _ string) error {
	l.mu.Lock()
	job, ok := l.jobs[jobID]
	l.mu.Unlock()

	if !ok {
		return nil
	}
	job.cancelOnce.Do(func() { close(job.cancelled) })
	return nil
}

func (l *Local) run(jobID uuid.UUID, req SubmissionRequest, cb Callbacks, job *localJob) {
	defer func() {
		l.mu.Lock()
		delete(l.jobs, jobID)
		l.mu.Unlock()
	}()

	finish := func(result Result) {
		if result.Type == ResultCancelled {
			cb.OnStatus(jobID, StatusCancelled)
		} else {
			cb.OnStatus(jobID, StatusFinished)
		}
		cb.OnFinished(jobID, result)
	}

	steps := []func() bool{
		func() bool {
			cb.OnStatus(jobID, StatusEnqueued)
			return true
		},
		func() bool {
			cb.OnStatus(jobID, StatusRunning)
			return true
		},
		func() bool {
			cb.OnProgress(jobID, 0.5, "halfway")
			return true
		},
	}

	for _, step := range steps {
		select {
		case <-job.cancelled:
			finish(Result{Type: ResultCancelled, Logs: "job cancelled"})
			return
		case <-time.After(l.stepDelay):
		}
		step()
	}

	select {
	case <-job.cancelled:
		finish(Result{Type: ResultCancelled, Logs: "job cancelled"})
		return
	case <-time.After(l.stepDelay):
	}

	// The simulation succeeds with the input system as its output.
	finish(Result{
		Type:       ResultSucceeded,
		Logs:       fmt.Sprintf("simulated run of %s completed", req.WorkflowType),
		OutputESDL: req.ESDL,
	})
}

var _ Orchestrator = (*Local)(nil)
