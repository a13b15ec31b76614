// internal/sync/syncer_test.go
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-service/internal/common/config"
	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
	"jobmatch-service/internal/source"
)

// ==========================
// Fakes
// ==========================

type fakeFetcher struct {
	outcomes map[string]*source.FetchOutcome
	fallback *source.FetchOutcome
}

func (f *fakeFetcher) FetchAll(ctx context.Context, maxPages int, query, country string) *source.FetchOutcome {
	if outcome, ok := f.outcomes[query]; ok {
		return outcome
	}
	if f.fallback != nil {
		return f.fallback
	}
	return &source.FetchOutcome{}
}

type fakeCatalog struct {
	mu         gosync.Mutex
	createErr  error
	updateErr  error
	creates    int
	updates    int
}

func (f *fakeCatalog) CreateJob(ctx context.Context, job *models.JobRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "tenants/t/jobs/" + job.RequisitionID, nil
}

func (f *fakeCatalog) UpdateJob(ctx context.Context, remoteName string, job *models.JobRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return "", f.updateErr
	}
	return remoteName, nil
}

// fakeStore mimics the store's atomic upsert semantics in memory, safe for
// concurrent callers.
type fakeStore struct {
	mu     gosync.Mutex
	nextID int64
	byExt  map[string]*models.JobRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{byExt: map[string]*models.JobRecord{}}
}

func (f *fakeStore) FindByExternalID(ctx context.Context, externalID string) (*models.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.byExt[externalID]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) Upsert(ctx context.Context, job *models.JobRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byExt[job.ExternalID]
	if ok {
		job.ID = existing.ID
		job.CreatedAt = existing.CreatedAt
	} else {
		f.nextID++
		job.ID = f.nextID
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()
	job.Status = models.StatusActive
	copied := *job
	f.byExt[job.ExternalID] = &copied
	return !ok, nil
}

func (f *fakeStore) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired int64
	for _, job := range f.byExt {
		if job.Status == models.StatusActive && job.UpdatedAt.Before(cutoff) {
			job.Status = models.StatusExpired
			expired++
		}
	}
	return expired, nil
}

type fakeRunLog struct {
	mu        gosync.Mutex
	created   []*models.SyncRun
	finalized []*models.SyncRun
	createErr error
}

func (f *fakeRunLog) Create(ctx context.Context, runType models.RunType, query, category string) (*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	run := &models.SyncRun{
		ID:        uuid.New().String(),
		RunType:   runType,
		Query:     query,
		Category:  category,
		Status:    models.RunInProgress,
		StartedAt: time.Now().UTC(),
	}
	f.created = append(f.created, run)
	return run, nil
}

func (f *fakeRunLog) Finalize(ctx context.Context, run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	finishedAt := time.Now().UTC()
	run.FinishedAt = &finishedAt
	f.finalized = append(f.finalized, run)
	return nil
}

// ==========================
// Test Helper Functions
// ==========================

func posting(id, title string) source.RawPosting {
	p := source.RawPosting{
		ID:          id,
		Title:       title,
		Description: "Build backend services with Go and Postgres",
		RedirectURL: "https://example.com/" + id,
	}
	p.Company.DisplayName = "Acme"
	return p
}

func outcomeOf(postings ...source.RawPosting) *source.FetchOutcome {
	return &source.FetchOutcome{Postings: postings, Pages: 1}
}

func createSyncer(t *testing.T, fetcher Fetcher, catalog RemoteCatalog, store JobWriter, runs RunLog) *Syncer {
	cfg := &config.SyncConfig{ExpiryDays: 30}
	return NewSyncer(fetcher, catalog, store, runs, nil, cfg, logger.NewTestLogger(t))
}

type fakeRunObserver struct {
	statuses []string
}

func (f *fakeRunObserver) RecordSyncRun(_ context.Context, status string) {
	f.statuses = append(f.statuses, status)
}

// ==========================
// Run Tests
// ==========================

func TestSyncer_Run_ReportsOutcomeToObserver(t *testing.T) {
	obs := &fakeRunObserver{}
	cfg := &config.SyncConfig{ExpiryDays: 30}

	ok := NewSyncer(&fakeFetcher{fallback: outcomeOf(posting("1", "Backend Engineer"))},
		&fakeCatalog{}, newFakeStore(), &fakeRunLog{}, obs, cfg, logger.NewTestLogger(t))
	_, err := ok.Run(context.Background(), models.RunManual, 5, "", "")
	require.NoError(t, err)

	failing := NewSyncer(&fakeFetcher{fallback: &source.FetchOutcome{Err: apperrors.NewSourceFetchFailedError(1, errors.New("source down"))}},
		&fakeCatalog{}, newFakeStore(), &fakeRunLog{}, obs, cfg, logger.NewTestLogger(t))
	_, err = failing.Run(context.Background(), models.RunManual, 5, "", "")
	require.Error(t, err)

	assert.Equal(t, []string{string(models.RunCompleted), string(models.RunFailed)}, obs.statuses)
}

func TestSyncer_Run_CreatesNewPostings(t *testing.T) {
	fetcher := &fakeFetcher{fallback: outcomeOf(posting("1", "Backend Engineer"), posting("2", "Data Engineer"))}
	catalog := &fakeCatalog{}
	store := newFakeStore()
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, catalog, store, runs)

	run, err := s.Run(context.Background(), models.RunManual, 5, "", "")

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 0, run.Updated)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, 2, catalog.creates)

	stored, err := store.FindByExternalID(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.RemoteName)
	assert.NotNil(t, stored.ExpiresAt)
	require.Len(t, runs.finalized, 1)
}

func TestSyncer_Run_SecondPassUpdatesNotCreates(t *testing.T) {
	fetcher := &fakeFetcher{fallback: outcomeOf(posting("1", "Backend Engineer"))}
	catalog := &fakeCatalog{}
	store := newFakeStore()
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, catalog, store, runs)

	first, err := s.Run(context.Background(), models.RunManual, 5, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := s.Run(context.Background(), models.RunManual, 5, "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 1, catalog.creates)
	assert.Equal(t, 1, catalog.updates)
	assert.Len(t, store.byExt, 1)
}

func TestSyncer_Run_RemoteCreateFailureStillPersistsLocally(t *testing.T) {
	fetcher := &fakeFetcher{fallback: outcomeOf(posting("1", "Backend Engineer"))}
	catalog := &fakeCatalog{createErr: apperrors.NewRemoteUnavailableError("create_job", errors.New("down"))}
	store := newFakeStore()
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, catalog, store, runs)

	run, err := s.Run(context.Background(), models.RunScheduled, 5, "", "")

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 0, run.Failed)

	stored, _ := store.FindByExternalID(context.Background(), "1")
	require.NotNil(t, stored)
	assert.Empty(t, stored.RemoteName)
}

func TestSyncer_Run_RemoteUpdateFailureStillCountsUpdate(t *testing.T) {
	fetcher := &fakeFetcher{fallback: outcomeOf(posting("1", "Backend Engineer"))}
	catalog := &fakeCatalog{}
	store := newFakeStore()
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, catalog, store, runs)

	_, err := s.Run(context.Background(), models.RunManual, 5, "", "")
	require.NoError(t, err)

	catalog.updateErr = apperrors.NewRemoteTimeoutError("update_job")
	run, err := s.Run(context.Background(), models.RunManual, 5, "", "")

	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 0, run.Failed)
}

func TestSyncer_Run_InvalidPostingCountedAsFailed(t *testing.T) {
	bad := posting("2", "")
	fetcher := &fakeFetcher{fallback: outcomeOf(posting("1", "Backend Engineer"), bad)}
	catalog := &fakeCatalog{}
	store := newFakeStore()
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, catalog, store, runs)

	run, err := s.Run(context.Background(), models.RunManual, 5, "", "")

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, run.Fetched, run.Created+run.Updated+run.Failed)
}

func TestSyncer_Run_PartialFetchStillCompletes(t *testing.T) {
	fetcher := &fakeFetcher{fallback: &source.FetchOutcome{
		Postings: []source.RawPosting{posting("1", "Backend Engineer")},
		Partial:  true,
		Err:      apperrors.NewSourceFetchFailedError(2, errors.New("boom")),
	}}
	s := createSyncer(t, fetcher, &fakeCatalog{}, newFakeStore(), &fakeRunLog{})

	run, err := s.Run(context.Background(), models.RunScheduled, 5, "", "")

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Fetched)
	assert.Equal(t, 1, run.Created)
}

func TestSyncer_Run_TotalFetchFailureMarksRunFailed(t *testing.T) {
	fetchErr := apperrors.NewSourceFetchFailedError(1, errors.New("boom"))
	fetcher := &fakeFetcher{fallback: &source.FetchOutcome{Err: fetchErr}}
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, &fakeCatalog{}, newFakeStore(), runs)

	run, err := s.Run(context.Background(), models.RunScheduled, 5, "", "")

	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	require.Len(t, runs.finalized, 1)
	assert.Equal(t, models.RunFailed, runs.finalized[0].Status)
}

// ==========================
// Staleness Sweep Tests
// ==========================

func TestSyncer_Run_SweepExpiresOnlyUntouchedRecords(t *testing.T) {
	store := newFakeStore()

	// A record from an earlier run that this run's fetch no longer returns.
	stale := &models.JobRecord{ExternalID: "stale", RequisitionID: "req-stale", Title: "Old", Description: "old"}
	_, err := store.Upsert(context.Background(), stale)
	require.NoError(t, err)
	store.byExt["stale"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	fetcher := &fakeFetcher{fallback: outcomeOf(posting("fresh", "Backend Engineer"))}
	s := createSyncer(t, fetcher, &fakeCatalog{}, store, &fakeRunLog{})

	run, err := s.Run(context.Background(), models.RunScheduled, 5, "", "")

	require.NoError(t, err)
	assert.Equal(t, 1, run.Expired)
	assert.Equal(t, models.StatusExpired, store.byExt["stale"].Status)
	assert.Equal(t, models.StatusActive, store.byExt["fresh"].Status)
}

// ==========================
// Bulk Run Tests
// ==========================

func TestSyncer_RunBulk_AggregatesCategoriesWithSingleSweep(t *testing.T) {
	store := newFakeStore()
	stale := &models.JobRecord{ExternalID: "stale", RequisitionID: "req-stale", Title: "Old", Description: "old"}
	_, err := store.Upsert(context.Background(), stale)
	require.NoError(t, err)
	store.byExt["stale"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	fetcher := &fakeFetcher{outcomes: map[string]*source.FetchOutcome{
		"it-jobs":    outcomeOf(posting("1", "Backend Engineer")),
		"sales-jobs": outcomeOf(posting("2", "Account Executive")),
	}}
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, &fakeCatalog{}, store, runs)

	run, err := s.RunBulk(context.Background(), []string{"it-jobs", "sales-jobs"}, 5, "", 0)

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, models.RunBulkCategory, run.RunType)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 1, run.Expired)

	// Postings from both categories survive the sweep even though the
	// second category finished well after the first began.
	assert.Equal(t, models.StatusActive, store.byExt["1"].Status)
	assert.Equal(t, models.StatusActive, store.byExt["2"].Status)
	require.Len(t, runs.created, 1)
}

func TestSyncer_RunBulk_CategoryFailureDoesNotAbortRemaining(t *testing.T) {
	fetcher := &fakeFetcher{
		outcomes: map[string]*source.FetchOutcome{
			"broken": {Err: apperrors.NewSourceFetchFailedError(1, errors.New("boom"))},
			"ok":     outcomeOf(posting("1", "Backend Engineer")),
		},
	}
	s := createSyncer(t, fetcher, &fakeCatalog{}, newFakeStore(), &fakeRunLog{})

	run, err := s.RunBulk(context.Background(), []string{"broken", "ok"}, 5, "", 0)

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Fetched)
	assert.Equal(t, 1, run.Created)
}

func TestSyncer_RunBulk_AllCategoriesFailingMarksRunFailed(t *testing.T) {
	fetcher := &fakeFetcher{fallback: &source.FetchOutcome{
		Err: apperrors.NewSourceFetchFailedError(1, errors.New("boom")),
	}}
	runs := &fakeRunLog{}
	s := createSyncer(t, fetcher, &fakeCatalog{}, newFakeStore(), runs)

	run, err := s.RunBulk(context.Background(), []string{"a", "b"}, 5, "", 0)

	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	require.Len(t, runs.finalized, 1)
	assert.Equal(t, models.RunFailed, runs.finalized[0].Status)
}

func TestSyncer_RunBulk_TotalFetchFailureSkipsSweep(t *testing.T) {
	store := newFakeStore()
	active := &models.JobRecord{ExternalID: "keep", RequisitionID: "req-keep", Title: "Backend Engineer", Description: "golang"}
	_, err := store.Upsert(context.Background(), active)
	require.NoError(t, err)
	store.byExt["keep"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	// A source outage across every category fetches nothing; sweeping with
	// the parent run's cutoff would expire the whole active store.
	fetcher := &fakeFetcher{fallback: &source.FetchOutcome{
		Err: apperrors.NewSourceFetchFailedError(1, errors.New("source down")),
	}}
	s := createSyncer(t, fetcher, &fakeCatalog{}, store, &fakeRunLog{})

	run, err := s.RunBulk(context.Background(), []string{"it-jobs", "sales-jobs"}, 5, "", 0)

	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, 0, run.Fetched)
	assert.Equal(t, 0, run.Expired)
	assert.Equal(t, models.StatusActive, store.byExt["keep"].Status)
}

// ==========================
// Concurrency Tests
// ==========================

func TestSyncer_ConcurrentDisjointRunsLoseNoWrites(t *testing.T) {
	store := newFakeStore()
	runs := &fakeRunLog{}

	fetcherA := &fakeFetcher{fallback: outcomeOf(posting("a1", "Backend Engineer"), posting("a2", "Platform Engineer"))}
	fetcherB := &fakeFetcher{fallback: outcomeOf(posting("b1", "Account Executive"), posting("b2", "Sales Manager"))}
	syncerA := createSyncer(t, fetcherA, &fakeCatalog{}, store, runs)
	syncerB := createSyncer(t, fetcherB, &fakeCatalog{}, store, runs)

	var wg gosync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := syncerA.Run(context.Background(), models.RunManual, 5, "", "")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := syncerB.Run(context.Background(), models.RunManual, 5, "", "")
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for _, id := range []string{"a1", "a2", "b1", "b2"} {
		stored, err := store.FindByExternalID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, stored, fmt.Sprintf("posting %s lost", id))
	}
}
