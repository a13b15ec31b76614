// internal/sync/syncer.go
package sync

import (
	"context"
	"time"

	"jobmatch-service/internal/common/config"
	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/metrics"
	"jobmatch-service/internal/models"
	"jobmatch-service/internal/relevance"
	"jobmatch-service/internal/source"
)

// Fetcher is the slice of the source client the syncer consumes.
type Fetcher interface {
	FetchAll(ctx context.Context, maxPages int, query, country string) *source.FetchOutcome
}

// RemoteCatalog keeps the ranking service's job records in step with the
// local store. Failures here are tolerated; local persistence never waits
// on the remote side.
type RemoteCatalog interface {
	CreateJob(ctx context.Context, job *models.JobRecord) (string, error)
	UpdateJob(ctx context.Context, remoteName string, job *models.JobRecord) (string, error)
}

// JobWriter is the store surface the syncer writes through.
type JobWriter interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.JobRecord, error)
	Upsert(ctx context.Context, job *models.JobRecord) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunLog records ingestion attempts.
type RunLog interface {
	Create(ctx context.Context, runType models.RunType, query, category string) (*models.SyncRun, error)
	Finalize(ctx context.Context, run *models.SyncRun) error
}

// RunObserver receives the outcome of every finalized run.
type RunObserver interface {
	RecordSyncRun(ctx context.Context, status string)
}

// Syncer reconciles external postings into the local store, one run at a
// time. Overlap prevention is the scheduler's job; the syncer itself only
// guarantees that concurrent runs over disjoint postings cannot lose
// writes, which the store's atomic upsert provides.
type Syncer struct {
	fetcher    Fetcher
	remote     RemoteCatalog
	jobs       JobWriter
	runs       RunLog
	obs        RunObserver
	expiryDays int
	log        logger.Logger
}

// NewSyncer builds a Syncer. obs may be nil.
func NewSyncer(fetcher Fetcher, remote RemoteCatalog, jobs JobWriter, runs RunLog, obs RunObserver, cfg *config.SyncConfig, log logger.Logger) *Syncer {
	return &Syncer{
		fetcher:    fetcher,
		remote:     remote,
		jobs:       jobs,
		runs:       runs,
		obs:        obs,
		expiryDays: cfg.ExpiryDays,
		log:        log,
	}
}

// recordRun emits the per-run outcome to both metric pipelines.
func (s *Syncer) recordRun(ctx context.Context, runType models.RunType, status models.RunStatus) {
	metrics.SyncRunsTotal.WithLabelValues(string(runType), string(status)).Inc()
	if s.obs != nil {
		s.obs.RecordSyncRun(ctx, string(status))
	}
}

// Run executes one ingestion pass: fetch, reconcile per posting, sweep
// stale records, finalize the audit entry. The run log is opened before
// any network call so an abandoned run is still visible.
func (s *Syncer) Run(ctx context.Context, runType models.RunType, maxPages int, query, country string) (*models.SyncRun, error) {
	started := time.Now()
	run, err := s.runs.Create(ctx, runType, query, "")
	if err != nil {
		return nil, err
	}

	if err := s.process(ctx, run, maxPages, query, country, true); err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		if finalizeErr := s.runs.Finalize(ctx, run); finalizeErr != nil {
			s.log.WithError(finalizeErr).Error("Failed to finalize failed run", map[string]interface{}{
				"run_id": run.ID,
			})
		}
		s.recordRun(ctx, runType, models.RunFailed)
		return run, err
	}

	run.Status = models.RunCompleted
	if err := s.runs.Finalize(ctx, run); err != nil {
		return run, err
	}

	s.recordRun(ctx, runType, models.RunCompleted)
	metrics.SyncRunDuration.WithLabelValues(string(runType)).Observe(time.Since(started).Seconds())
	s.log.Info("Sync run completed", map[string]interface{}{
		"run_id":  run.ID,
		"fetched": run.Fetched,
		"created": run.Created,
		"updated": run.Updated,
		"failed":  run.Failed,
		"expired": run.Expired,
	})
	return run, nil
}

// process does the fetch-reconcile-sweep body of a run, accumulating
// counters on the run. With sweep disabled it can serve as one category
// pass inside a bulk run.
func (s *Syncer) process(ctx context.Context, run *models.SyncRun, maxPages int, query, country string, sweep bool) error {
	outcome := s.fetcher.FetchAll(ctx, maxPages, query, country)
	if outcome.Err != nil && len(outcome.Postings) == 0 {
		return outcome.Err
	}
	if outcome.Partial {
		s.log.WithError(outcome.Err).Warn("Pagination cut short, processing partial results", map[string]interface{}{
			"run_id":  run.ID,
			"fetched": len(outcome.Postings),
		})
	}

	run.Fetched += len(outcome.Postings)
	for i := range outcome.Postings {
		if err := s.reconcile(ctx, run, &outcome.Postings[i]); err != nil {
			run.Failed++
			metrics.SyncPostingsTotal.WithLabelValues("failed").Inc()
			s.log.WithError(err).Warn("Failed to reconcile posting", map[string]interface{}{
				"run_id":      run.ID,
				"external_id": outcome.Postings[i].ID,
			})
		}
	}

	if sweep {
		expired, err := s.jobs.ExpireStale(ctx, run.StartedAt)
		if err != nil {
			return err
		}
		run.Expired += int(expired)
	}
	return nil
}

// reconcile upserts one posting, creating or refreshing the remote catalog
// entry on the side. Remote failures are logged, never fatal.
func (s *Syncer) reconcile(ctx context.Context, run *models.SyncRun, raw *source.RawPosting) error {
	record, err := source.Normalize(raw)
	if err != nil {
		return err
	}

	existing, err := s.jobs.FindByExternalID(ctx, record.ExternalID)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().AddDate(0, 0, s.expiryDays)
	syncedAt := time.Now().UTC()
	record.ExpiresAt = &expiresAt
	record.LastSyncedAt = &syncedAt

	if existing != nil {
		record.RequisitionID = existing.RequisitionID
		record.RemoteName = existing.RemoteName
		if existing.RemoteName != "" {
			if name, err := s.remote.UpdateJob(ctx, existing.RemoteName, record); err != nil {
				s.log.WithError(err).Warn("Remote catalog update failed, keeping local record", map[string]interface{}{
					"requisition_id": record.RequisitionID,
				})
			} else {
				record.RemoteName = name
			}
		}
	} else {
		record.RequisitionID = relevance.RequisitionID(record.ExternalID)
		if name, err := s.remote.CreateJob(ctx, record); err != nil {
			s.log.WithError(err).Warn("Remote catalog create failed, storing locally anyway", map[string]interface{}{
				"requisition_id": record.RequisitionID,
			})
		} else {
			record.RemoteName = name
		}
	}

	created, err := s.jobs.Upsert(ctx, record)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeRecordConflict) && existing == nil {
			// Another run inserted the same posting between the lookup
			// and the write. Retry once as an update.
			if _, retryErr := s.jobs.Upsert(ctx, record); retryErr == nil {
				run.Updated++
				metrics.SyncPostingsTotal.WithLabelValues("updated").Inc()
				return nil
			}
		}
		return err
	}

	if created {
		run.Created++
		metrics.SyncPostingsTotal.WithLabelValues("created").Inc()
	} else {
		run.Updated++
		metrics.SyncPostingsTotal.WithLabelValues("updated").Inc()
	}
	return nil
}
