// Package jobstore persists job records. It owns durability and query
// execution only; which transitions are legal is decided by the
// coordinator. Every write runs in its own transaction because the
// store is called concurrently from request handlers and from
// orchestrator callback goroutines with no external synchronization.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/omex-energy/omex/pkg/db/models"
	"github.com/omex-energy/omex/pkg/oerr"
	"github.com/omex-energy/omex/pkg/olog"
)

// summaryColumns is the projection used by every listing.
var summaryColumns = []string{
	"job_id", "job_name", "workflow_type", "status", "progress_fraction",
	"registered_at", "running_at", "stopped_at", "user_name", "project_name",
}

type Store struct {
	db  *bun.DB
	log *olog.Logger
}

func New(db *bun.DB, log *olog.Logger) *Store {
	return &Store{db: db, log: log.Named("jobstore")}
}

// Create inserts a new job record. A job_id collision yields a
// duplicate_job error.
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(job).Exec(ctx)
		return err
	})
	if err != nil {
		if isDuplicateKey(err) {
			return oerr.Newf(oerr.CodeDuplicateJob, "job %s already exists", job.JobID)
		}
		return err
	}
	s.log.Debug("job created", "job_id", job.JobID)
	return nil
}

// SetRegistered sets the status back to registered. The registered_at
// stamp is written at creation and never moves.
func (s *Store) SetRegistered(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return s.update(ctx, jobID, func(q *bun.UpdateQuery) {
		q.Set("status = ?", models.StatusRegistered)
	})
}

// SetEnqueued marks the job as handed to the engine's queue, stamping
// submitted_at the first time.
func (s *Store) SetEnqueued(ctx context.Context, jobID uuid.UUID) (bool, error) {
	now := time.Now()
	return s.update(ctx, jobID, func(q *bun.UpdateQuery) {
		q.Set("status = ?", models.StatusEnqueued).
			Set("submitted_at = COALESCE(submitted_at, ?)", now)
	})
}

// SetRunning marks the job as started, stamping running_at the first time.
func (s *Store) SetRunning(ctx context.Context, jobID uuid.UUID) (bool, error) {
	now := time.Now()
	return s.update(ctx, jobID, func(q *bun.UpdateQuery) {
		q.Set("status = ?", models.StatusRunning).
			Set("running_at = COALESCE(running_at, ?)", now)
	})
}

// StopInfo carries the diagnostic output attached to a terminal write.
type StopInfo struct {
	Logs       *string
	OutputESDL *string
	Feedback   models.EsdlFeedback
}

// SetStopped writes a terminal status, stamps stopped_at the first
// time, and stores logs/output/feedback. The diagnostic columns are
// overwritten unconditionally: a provisional FINISHED status update and
// the later result event both land here, last write wins.
func (s *Store) SetStopped(ctx context.Context, jobID uuid.UUID, status models.JobStatus, info StopInfo) (bool, error) {
	now := time.Now()

	var feedback *string
	if info.Feedback != nil {
		raw, err := json.Marshal(info.Feedback)
		if err != nil {
			return false, err
		}
		encoded := string(raw)
		feedback = &encoded
	}

	return s.update(ctx, jobID, func(q *bun.UpdateQuery) {
		q.Set("status = ?", status).
			Set("stopped_at = COALESCE(stopped_at, ?)", now).
			Set("logs = ?", info.Logs).
			Set("output_esdl = ?", info.OutputESDL).
			Set("esdl_feedback = ?", feedback)
	})
}

// SetProgress overwrites the progress fields. No monotonicity check:
// callbacks are applied in delivery order.
func (s *Store) SetProgress(ctx context.Context, jobID uuid.UUID, fraction float64, message string) (bool, error) {
	return s.update(ctx, jobID, func(q *bun.UpdateQuery) {
		q.Set("progress_fraction = ?", fraction).
			Set("progress_message = ?", message)
	})
}

// update runs a single-row UPDATE in its own transaction and reports
// whether a row matched. Zero rows means the job is unknown; the caller
// decides what that means.
func (s *Store) update(ctx context.Context, jobID uuid.UUID, apply func(*bun.UpdateQuery)) (bool, error) {
	var rows int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Model((*models.Job)(nil)).Where("job_id = ?", jobID)
		apply(q)
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Reads are single statements on a pooled connection: each runs in its
// own implicit transaction, so they skip the RunInTx wrapper the writes
// need.

// Get returns the full record, or nil when the job is unknown.
func (s *Store) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job := new(models.Job)
	err := s.db.NewSelect().Model(job).Where("job_id = ?", jobID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetStatus returns the current status and whether the job exists.
func (s *Store) GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error) {
	var status models.JobStatus
	err := s.db.NewSelect().Model((*models.Job)(nil)).
		Column("status").
		Where("job_id = ?", jobID).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// GetOutputESDL returns the output payload. The pointer is nil while no
// result has arrived; found is false when the job is unknown.
func (s *Store) GetOutputESDL(ctx context.Context, jobID uuid.UUID) (*string, bool, error) {
	return s.getText(ctx, jobID, "output_esdl")
}

// GetLogs returns the job logs, with the same absence semantics as
// GetOutputESDL.
func (s *Store) GetLogs(ctx context.Context, jobID uuid.UUID) (*string, bool, error) {
	return s.getText(ctx, jobID, "logs")
}

func (s *Store) getText(ctx context.Context, jobID uuid.UUID, column string) (*string, bool, error) {
	var value sql.NullString
	err := s.db.NewSelect().Model((*models.Job)(nil)).
		Column(column).
		Where("job_id = ?", jobID).
		Scan(ctx, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !value.Valid {
		return nil, true, nil
	}
	return &value.String, true, nil
}

// Delete removes the record, reporting whether a row was removed.
func (s *Store) Delete(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var rows int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*models.Job)(nil)).
			Where("job_id = ?", jobID).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	s.log.Debug("job deleted", "job_id", jobID, "removed", rows > 0)
	return rows > 0, nil
}

// List returns summary projections of all jobs. Ordering is unspecified.
func (s *Store) List(ctx context.Context) ([]models.Job, error) {
	return s.list(ctx, nil)
}

// ListByIDs returns summaries for the given job ids only.
func (s *Store) ListByIDs(ctx context.Context, jobIDs []uuid.UUID) ([]models.Job, error) {
	if len(jobIDs) == 0 {
		return []models.Job{}, nil
	}
	return s.list(ctx, func(q *bun.SelectQuery) {
		q.Where("job_id IN (?)", bun.In(jobIDs))
	})
}

// ListByUser returns summaries of the jobs submitted by one user.
func (s *Store) ListByUser(ctx context.Context, userName string) ([]models.Job, error) {
	return s.list(ctx, func(q *bun.SelectQuery) {
		q.Where("user_name = ?", userName)
	})
}

// ListByProject returns summaries of the jobs belonging to one project.
func (s *Store) ListByProject(ctx context.Context, projectName string) ([]models.Job, error) {
	return s.list(ctx, func(q *bun.SelectQuery) {
		q.Where("project_name = ?", projectName)
	})
}

func (s *Store) list(ctx context.Context, apply func(*bun.SelectQuery)) ([]models.Job, error) {
	jobs := []models.Job{}
	q := s.db.NewSelect().Model(&jobs).Column(summaryColumns...)
	if apply != nil {
		apply(q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return jobs, nil
}

// isDuplicateKey recognizes primary-key violations from both the
// postgres driver and the sqlite driver used in tests.
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
