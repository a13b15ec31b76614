// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-service/internal/common/config"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

// ==========================
// Fakes
// ==========================

type syncCall struct {
	runType    models.RunType
	query      string
	country    string
	maxPages   int
	categories []string
}

type fakeSyncRunner struct {
	mu      sync.Mutex
	calls   []syncCall
	block   chan struct{} // when non-nil, Run blocks until closed
	started chan struct{} // signalled once per Run entry
	err     error
}

func (f *fakeSyncRunner) Run(ctx context.Context, runType models.RunType, maxPages int, query, country string) (*models.SyncRun, error) {
	f.mu.Lock()
	f.calls = append(f.calls, syncCall{runType: runType, query: query, country: country, maxPages: maxPages})
	block := f.block
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.SyncRun{ID: "run-1", RunType: runType, Status: models.RunCompleted}, nil
}

func (f *fakeSyncRunner) RunBulk(ctx context.Context, categories []string, maxPages int, country string, pause time.Duration) (*models.SyncRun, error) {
	f.mu.Lock()
	f.calls = append(f.calls, syncCall{runType: models.RunBulkCategory, country: country, maxPages: maxPages, categories: categories})
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	return &models.SyncRun{ID: "run-bulk", RunType: models.RunBulkCategory, Status: models.RunCompleted}, nil
}

func (f *fakeSyncRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type digestCall struct {
	frequency models.DigestFrequency
	email     string
}

type fakeDigestRunner struct {
	mu    sync.Mutex
	calls []digestCall
	done  chan struct{}
}

func (f *fakeDigestRunner) RunDigest(ctx context.Context, frequency models.DigestFrequency) error {
	f.mu.Lock()
	f.calls = append(f.calls, digestCall{frequency: frequency})
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

func (f *fakeDigestRunner) SendTo(ctx context.Context, email string) error {
	f.mu.Lock()
	f.calls = append(f.calls, digestCall{email: email})
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

type fakeRetention struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakeRetention) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

// ==========================
// Helpers
// ==========================

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		MaxPages:      5,
		ExpiryDays:    7,
		RefreshTime:   "06:30",
		RetentionDays: 90,
	}
}

func testSchedulerConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{
		Enabled:      true,
		DigestHour:   10,
		WeeklyDay:    "TUE",
		BiweeklyDays: "TUE,THU",
	}
}

func newTestScheduler(t *testing.T, syncer *fakeSyncRunner, notifier *fakeDigestRunner, retention *fakeRetention, syncCfg *config.SyncConfig, schedCfg *config.SchedulerConfig) *Scheduler {
	t.Helper()
	if syncCfg == nil {
		syncCfg = testSyncConfig()
	}
	if schedCfg == nil {
		schedCfg = testSchedulerConfig()
	}
	// Background jobs may log after the test body returns, so the shared
	// test logger is unsafe here.
	return New(syncer, notifier, retention, syncCfg, schedCfg, "us", logger.NewNoOpLogger())
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background job")
	}
}

// ==========================
// Lifecycle
// ==========================

func TestScheduler_StartAndStop(t *testing.T) {
	syncer := &fakeSyncRunner{}
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	s.Stop(context.Background())

	assert.Equal(t, 0, syncer.callCount())
}

func TestScheduler_StopIsBoundedWhileSyncInFlight(t *testing.T) {
	// A sync stuck past the shutdown deadline must not wedge Stop.
	syncer := &fakeSyncRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	schedCfg := testSchedulerConfig()
	schedCfg.RunSyncOnStart = true
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, schedCfg)

	require.NoError(t, s.Start(context.Background()))
	waitSignal(t, syncer.started)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Stop(ctx)
		close(done)
	}()
	waitSignal(t, done)

	close(syncer.block)
}

func TestScheduler_StartRejectsBadRefreshTime(t *testing.T) {
	syncCfg := testSyncConfig()
	syncCfg.RefreshTime = "quarter past six"
	s := newTestScheduler(t, &fakeSyncRunner{}, &fakeDigestRunner{}, &fakeRetention{}, syncCfg, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh time")
}

func TestScheduler_RunSyncOnStartKicksOffSync(t *testing.T) {
	syncer := &fakeSyncRunner{started: make(chan struct{}, 1)}
	schedCfg := testSchedulerConfig()
	schedCfg.RunSyncOnStart = true
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, schedCfg)

	require.NoError(t, s.Start(context.Background()))
	waitSignal(t, syncer.started)
	s.Stop(context.Background())

	require.Equal(t, 1, syncer.callCount())
	assert.Equal(t, models.RunScheduled, syncer.calls[0].runType)
	assert.Equal(t, "us", syncer.calls[0].country)
}

// ==========================
// Ingestion runs
// ==========================

func TestScheduler_RunSyncUsesBulkWhenCategoriesConfigured(t *testing.T) {
	syncer := &fakeSyncRunner{}
	syncCfg := testSyncConfig()
	syncCfg.BulkCategories = []string{"it-jobs", "engineering-jobs"}
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, syncCfg, nil)

	s.runSync(context.Background(), "test tick")

	require.Equal(t, 1, syncer.callCount())
	assert.Equal(t, models.RunBulkCategory, syncer.calls[0].runType)
	assert.Equal(t, []string{"it-jobs", "engineering-jobs"}, syncer.calls[0].categories)
}

func TestScheduler_OverlappingTicksAreCoalesced(t *testing.T) {
	block := make(chan struct{})
	syncer := &fakeSyncRunner{block: block, started: make(chan struct{}, 1)}
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, nil)

	firstDone := make(chan struct{})
	go func() {
		s.runSync(context.Background(), "first tick")
		close(firstDone)
	}()
	waitSignal(t, syncer.started)

	// Second tick lands while the first run is still in flight.
	s.runSync(context.Background(), "second tick")
	assert.Equal(t, 1, syncer.callCount())

	close(block)
	waitSignal(t, firstDone)
}

func TestScheduler_SyncErrorDoesNotStickTheLock(t *testing.T) {
	syncer := &fakeSyncRunner{err: errors.New("source down")}
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, nil)

	s.runSync(context.Background(), "first tick")
	s.runSync(context.Background(), "second tick")

	assert.Equal(t, 2, syncer.callCount())
}

// ==========================
// Manual triggers
// ==========================

func TestScheduler_TriggerSyncNowRunsManualSync(t *testing.T) {
	syncer := &fakeSyncRunner{started: make(chan struct{}, 1)}
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, nil)

	id := s.TriggerSyncNow(context.Background())
	waitSignal(t, syncer.started)

	assert.True(t, strings.HasPrefix(id, "manual_refresh_"))
	require.Equal(t, 1, syncer.callCount())
	assert.Equal(t, models.RunManual, syncer.calls[0].runType)
}

func TestScheduler_TriggerIDsNeverCollide(t *testing.T) {
	syncer := &fakeSyncRunner{started: make(chan struct{}, 2)}
	s := newTestScheduler(t, syncer, &fakeDigestRunner{}, &fakeRetention{}, nil, nil)

	first := s.TriggerSyncNow(context.Background())
	waitSignal(t, syncer.started)
	second := s.TriggerSyncNow(context.Background())
	waitSignal(t, syncer.started)

	assert.NotEqual(t, first, second)
}

func TestScheduler_TriggerDigestNowWithEmailTargetsSubscriber(t *testing.T) {
	notifier := &fakeDigestRunner{done: make(chan struct{}, 1)}
	s := newTestScheduler(t, &fakeSyncRunner{}, notifier, &fakeRetention{}, nil, nil)

	id := s.TriggerDigestNow(context.Background(), "dev@example.com")
	waitSignal(t, notifier.done)

	assert.True(t, strings.HasPrefix(id, "manual_digest_"))
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "dev@example.com", notifier.calls[0].email)
}

func TestScheduler_TriggerDigestNowWithoutEmailSweepsDaily(t *testing.T) {
	notifier := &fakeDigestRunner{done: make(chan struct{}, 1)}
	s := newTestScheduler(t, &fakeSyncRunner{}, notifier, &fakeRetention{}, nil, nil)

	s.TriggerDigestNow(context.Background(), "")
	waitSignal(t, notifier.done)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, models.DigestDaily, notifier.calls[0].frequency)
	assert.Empty(t, notifier.calls[0].email)
}

// ==========================
// Retention
// ==========================

func TestScheduler_RetentionUsesConfiguredWindow(t *testing.T) {
	retention := &fakeRetention{deleted: 12}
	syncCfg := testSyncConfig()
	syncCfg.RetentionDays = 30
	s := newTestScheduler(t, &fakeSyncRunner{}, &fakeDigestRunner{}, retention, syncCfg, nil)

	before := time.Now().UTC().AddDate(0, 0, -30)
	s.runRetention(context.Background())
	after := time.Now().UTC().AddDate(0, 0, -30)

	require.Len(t, retention.cutoffs, 1)
	cutoff := retention.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestScheduler_RetentionSkippedWhenDisabled(t *testing.T) {
	retention := &fakeRetention{}
	syncCfg := testSyncConfig()
	syncCfg.RetentionDays = 0
	s := newTestScheduler(t, &fakeSyncRunner{}, &fakeDigestRunner{}, retention, syncCfg, nil)

	s.runRetention(context.Background())

	assert.Empty(t, retention.cutoffs)
}
