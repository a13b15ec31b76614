// internal/store/syncruns_test.go
package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

func syncRunColumnList() []string {
	return []string{
		"id", "run_type", "query", "category", "status", "jobs_fetched",
		"jobs_created", "jobs_updated", "jobs_failed", "jobs_expired", "error",
		"started_at", "finished_at",
	}
}

func TestSyncRunStore_Create_OpensInProgressRun(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSyncRunStore(db, logger.NewTestLogger(t))

	mock.ExpectExec(`INSERT INTO sync_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := s.Create(context.Background(), models.RunScheduled, "golang", "")

	require.NoError(t, err)
	assert.Equal(t, models.RunInProgress, run.Status)
	assert.Equal(t, models.RunScheduled, run.RunType)
	assert.Equal(t, "golang", run.Query)
	assert.False(t, run.StartedAt.IsZero())

	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunStore_Finalize_WritesCountersAndStatus(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSyncRunStore(db, logger.NewTestLogger(t))

	run := &models.SyncRun{
		ID:      uuid.New().String(),
		RunType: models.RunManual,
		Status:  models.RunCompleted,
		Fetched: 10, Created: 4, Updated: 5, Failed: 1, Expired: 2,
	}

	mock.ExpectExec(`UPDATE sync_runs SET status = \$1`).
		WithArgs("completed", 10, 4, 5, 1, 2, "", sqlmock.AnyArg(), run.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Finalize(context.Background(), run)

	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunStore_Get_NotFoundIsNil(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSyncRunStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM sync_runs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(syncRunColumnList()))

	run, err := s.Get(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestSyncRunStore_Recent_ReturnsNewestFirst(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSyncRunStore(db, logger.NewTestLogger(t))

	now := time.Now()
	rows := sqlmock.NewRows(syncRunColumnList()).
		AddRow([]driver.Value{"run-2", "scheduled", nil, nil, "completed", 10, 4, 5, 1, 0, nil, now, now}...).
		AddRow([]driver.Value{"run-1", "manual", "golang", nil, "failed", 0, 0, 0, 0, 0, "boom", now.Add(-time.Hour), now.Add(-time.Hour)}...)
	mock.ExpectQuery(`SELECT .+ FROM sync_runs ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(rows)

	runs, err := s.Recent(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, models.RunCompleted, runs[0].Status)
	assert.Equal(t, "boom", runs[1].Error)
	assert.Equal(t, 10, runs[0].Fetched)
}
