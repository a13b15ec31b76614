// internal/store/syncruns.go
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

const syncRunColumns = `id, run_type, query, category, status, jobs_fetched,
	jobs_created, jobs_updated, jobs_failed, jobs_expired, error, started_at, finished_at`

// SyncRunStore persists the ingestion audit log.
type SyncRunStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewSyncRunStore(db *sql.DB, log logger.Logger) *SyncRunStore {
	return &SyncRunStore{db: db, log: log}
}

// Create opens a new run in in-progress state and returns it. The run is
// written before any network call so a crash still leaves a trace.
func (s *SyncRunStore) Create(ctx context.Context, runType models.RunType, query, category string) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:        uuid.New().String(),
		RunType:   runType,
		Query:     query,
		Category:  category,
		Status:    models.RunInProgress,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, run_type, query, category, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.RunType), run.Query, run.Category, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return run, nil
}

// Finalize writes the run's terminal state and counters. Completed and
// failed runs are never touched again.
func (s *SyncRunStore) Finalize(ctx context.Context, run *models.SyncRun) error {
	finishedAt := time.Now().UTC()
	run.FinishedAt = &finishedAt

	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = $1, jobs_fetched = $2, jobs_created = $3,
		   jobs_updated = $4, jobs_failed = $5, jobs_expired = $6, error = $7,
		   finished_at = $8
		 WHERE id = $9`,
		string(run.Status), run.Fetched, run.Created, run.Updated, run.Failed,
		run.Expired, run.Error, finishedAt, run.ID)
	if err != nil {
		return apperrors.NewStoreUnavailableError(err)
	}
	return nil
}

// Get returns one run by id, or nil if it does not exist.
func (s *SyncRunStore) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = $1`, id)
	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return run, nil
}

// Recent returns the latest runs, newest first.
func (s *SyncRunStore) Recent(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return runs, nil
}

func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var run models.SyncRun
	var runType, status string
	var query, category, errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID, &runType, &query, &category, &status, &run.Fetched,
		&run.Created, &run.Updated, &run.Failed, &run.Expired, &errMsg,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.RunType = models.RunType(runType)
	run.Status = models.RunStatus(status)
	run.Query = query.String
	run.Category = category.String
	run.Error = errMsg.String
	run.FinishedAt = fromNullTime(finishedAt)
	return &run, nil
}
