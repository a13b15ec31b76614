// internal/sync/bulk.go
package sync

import (
	"context"
	"time"

	"jobmatch-service/internal/common/metrics"
	"jobmatch-service/internal/models"
)

// RunBulk syncs a fixed set of category labels under one parent run,
// pausing between categories to respect source rate limits. The staleness
// sweep runs exactly once, after every category, with the parent run's
// start time as the cutoff. Sweeping per category would expire valid
// postings belonging to categories not yet processed.
func (s *Syncer) RunBulk(ctx context.Context, categories []string, maxPages int, country string, pause time.Duration) (*models.SyncRun, error) {
	started := time.Now()
	run, err := s.runs.Create(ctx, models.RunBulkCategory, "", "all")
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, category := range categories {
		s.log.Info("Syncing category", map[string]interface{}{
			"run_id":   run.ID,
			"category": category,
			"position": i + 1,
			"total":    len(categories),
		})

		if err := s.process(ctx, run, maxPages, category, country, false); err != nil {
			lastErr = err
			s.log.WithError(err).Error("Category sync failed, continuing with remaining categories", map[string]interface{}{
				"run_id":   run.ID,
				"category": category,
			})
		}

		if i < len(categories)-1 && pause > 0 {
			select {
			case <-ctx.Done():
				run.Status = models.RunFailed
				run.Error = ctx.Err().Error()
				s.runs.Finalize(ctx, run)
				return run, ctx.Err()
			case <-time.After(pause):
			}
		}
	}

	// A run that fetched nothing must not sweep: with no upserts, the
	// cutoff would expire every active record in the store.
	if run.Fetched == 0 && lastErr != nil {
		run.Status = models.RunFailed
		run.Error = lastErr.Error()
		if err := s.runs.Finalize(ctx, run); err != nil {
			return run, err
		}
		s.recordRun(ctx, models.RunBulkCategory, run.Status)
		return run, lastErr
	}

	expired, err := s.jobs.ExpireStale(ctx, run.StartedAt)
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		s.runs.Finalize(ctx, run)
		return run, err
	}
	run.Expired = int(expired)

	run.Status = models.RunCompleted
	if err := s.runs.Finalize(ctx, run); err != nil {
		return run, err
	}

	s.recordRun(ctx, models.RunBulkCategory, run.Status)
	metrics.SyncRunDuration.WithLabelValues(string(models.RunBulkCategory)).Observe(time.Since(started).Seconds())
	s.log.Info("Bulk sync completed", map[string]interface{}{
		"run_id":     run.ID,
		"categories": len(categories),
		"fetched":    run.Fetched,
		"created":    run.Created,
		"updated":    run.Updated,
		"failed":     run.Failed,
		"expired":    run.Expired,
	})
	return run, nil
}
