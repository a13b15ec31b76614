// Package scheduler wires up the cron jobs that drive periodic ingestion,
// digest email sweeps and retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"jobmatch-service/internal/common/config"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

// SyncRunner runs ingestion passes against the external job source.
type SyncRunner interface {
	Run(ctx context.Context, runType models.RunType, maxPages int, query, country string) (*models.SyncRun, error)
	RunBulk(ctx context.Context, categories []string, maxPages int, country string, pause time.Duration) (*models.SyncRun, error)
}

// DigestRunner sends digest emails to subscribers.
type DigestRunner interface {
	RunDigest(ctx context.Context, frequency models.DigestFrequency) error
	SendTo(ctx context.Context, email string) error
}

// RetentionStore prunes expired records past the retention window.
type RetentionStore interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler wraps robfig/cron and manages the recurring jobs. At most one
// ingestion run executes at a time; ticks that land while a run is still in
// flight are coalesced, not queued.
type Scheduler struct {
	cron        *cron.Cron
	syncer      SyncRunner
	notifier    DigestRunner
	retention   RetentionStore
	syncCfg     *config.SyncConfig
	schedCfg    *config.SchedulerConfig
	country     string
	log         logger.Logger
	syncRunning atomic.Bool
}

// New creates a Scheduler. Jobs are registered on Start, not here.
func New(syncer SyncRunner, notifier DigestRunner, retention RetentionStore, syncCfg *config.SyncConfig, schedCfg *config.SchedulerConfig, country string, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		syncer:    syncer,
		notifier:  notifier,
		retention: retention,
		syncCfg:   syncCfg,
		schedCfg:  schedCfg,
		country:   country,
		log:       log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

// Start registers the cron entries and starts the scheduler. All schedules
// are evaluated in UTC. Optionally kicks off one ingestion run immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	refresh, err := config.ParseRefreshTime(s.syncCfg.RefreshTime)
	if err != nil {
		return fmt.Errorf("parse refresh time: %w", err)
	}

	entries := []struct {
		name string
		spec string
		job  func()
	}{
		{
			name: "daily_job_sync",
			spec: fmt.Sprintf("%d %d * * *", refresh.Minute(), refresh.Hour()),
			job:  func() { s.runSync(ctx, "scheduled refresh") },
		},
		{
			name: "daily_digest",
			spec: fmt.Sprintf("0 %d * * *", s.schedCfg.DigestHour),
			job:  func() { s.runDigest(ctx, models.DigestDaily) },
		},
		{
			name: "weekly_digest",
			spec: fmt.Sprintf("0 %d * * %s", s.schedCfg.DigestHour, s.schedCfg.WeeklyDay),
			job:  func() { s.runDigest(ctx, models.DigestWeekly) },
		},
		{
			name: "biweekly_digest",
			spec: fmt.Sprintf("0 %d * * %s", s.schedCfg.DigestHour, s.schedCfg.BiweeklyDays),
			job:  func() { s.runDigest(ctx, models.DigestBiweekly) },
		},
		{
			name: "retention_cleanup",
			spec: "0 2 * * *",
			job:  func() { s.runRetention(ctx) },
		},
	}

	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.spec, e.job); err != nil {
			return fmt.Errorf("register %s (%q): %w", e.name, e.spec, err)
		}
		s.log.Info("cron job registered", map[string]interface{}{
			"job":  e.name,
			"spec": e.spec,
		})
	}

	s.cron.Start()
	s.log.Info("scheduler started", map[string]interface{}{
		"refresh_time": s.syncCfg.RefreshTime,
		"digest_hour":  s.schedCfg.DigestHour,
	})

	if s.schedCfg.RunSyncOnStart {
		go s.runSync(ctx, "startup refresh")
	}

	return nil
}

// Stop shuts down the scheduler and waits for in-flight jobs to finish,
// or for ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("scheduler stopped", nil)
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still in flight", nil)
	}
}

// TriggerSyncNow kicks off a one-off manual ingestion run in the background.
// The returned trigger id is derived from the request timestamp so repeated
// triggers never collide.
func (s *Scheduler) TriggerSyncNow(ctx context.Context) string {
	id := fmt.Sprintf("manual_refresh_%d", time.Now().UnixNano())
	go func() {
		s.log.Info("manual sync triggered", map[string]interface{}{"trigger_id": id})
		if !s.acquireSync() {
			s.log.Warn("manual sync coalesced, a run is already in flight", map[string]interface{}{"trigger_id": id})
			return
		}
		defer s.syncRunning.Store(false)
		s.doSync(ctx, models.RunManual)
	}()
	return id
}

// TriggerDigestNow sends a digest out of band. With an email it targets that
// single subscriber, otherwise it sweeps all daily subscribers.
func (s *Scheduler) TriggerDigestNow(ctx context.Context, email string) string {
	id := fmt.Sprintf("manual_digest_%d", time.Now().UnixNano())
	go func() {
		s.log.Info("manual digest triggered", map[string]interface{}{
			"trigger_id": id,
			"email":      email,
		})
		var err error
		if email != "" {
			err = s.notifier.SendTo(ctx, email)
		} else {
			err = s.notifier.RunDigest(ctx, models.DigestDaily)
		}
		if err != nil {
			s.log.WithError(err).Error("manual digest failed", map[string]interface{}{"trigger_id": id})
		}
	}()
	return id
}

func (s *Scheduler) acquireSync() bool {
	return s.syncRunning.CompareAndSwap(false, true)
}

func (s *Scheduler) runSync(ctx context.Context, reason string) {
	if !s.acquireSync() {
		s.log.Warn("sync tick coalesced, previous run still in flight", map[string]interface{}{"reason": reason})
		return
	}
	defer s.syncRunning.Store(false)

	s.log.Info("sync cycle started", map[string]interface{}{"reason": reason})
	s.doSync(ctx, models.RunScheduled)
}

func (s *Scheduler) doSync(ctx context.Context, runType models.RunType) {
	var (
		run *models.SyncRun
		err error
	)
	if len(s.syncCfg.BulkCategories) > 0 {
		run, err = s.syncer.RunBulk(ctx, s.syncCfg.BulkCategories, s.syncCfg.MaxPages, s.country, config.GetDuration(s.syncCfg.CategoryPause))
	} else {
		run, err = s.syncer.Run(ctx, runType, s.syncCfg.MaxPages, "", s.country)
	}
	if err != nil {
		s.log.WithError(err).Error("sync cycle failed", nil)
		return
	}
	s.log.Info("sync cycle complete", map[string]interface{}{
		"run_id":  run.ID,
		"fetched": run.Fetched,
		"created": run.Created,
		"updated": run.Updated,
		"expired": run.Expired,
	})
}

func (s *Scheduler) runDigest(ctx context.Context, frequency models.DigestFrequency) {
	if err := s.notifier.RunDigest(ctx, frequency); err != nil {
		s.log.WithError(err).Error("digest sweep failed", map[string]interface{}{"frequency": string(frequency)})
	}
}

func (s *Scheduler) runRetention(ctx context.Context) {
	if s.syncCfg.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.syncCfg.RetentionDays)
	deleted, err := s.retention.DeleteStale(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("retention cleanup failed", nil)
		return
	}
	s.log.Info("retention cleanup complete", map[string]interface{}{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
}
