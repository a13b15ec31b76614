// internal/matching/matcher.go
package matching

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"jobmatch-service/internal/cache"
	"jobmatch-service/internal/common/config"
	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/metrics"
	"jobmatch-service/internal/models"
	"jobmatch-service/internal/relevance"
)

// scoreFloor drops local-engine candidates with effectively no signal.
const scoreFloor = 0.1

// oversampleFactor widens the local candidate pool so post-filters still
// leave enough results.
const oversampleFactor = 3

// RemoteSearcher is the slice of the relevance client the matcher needs.
type RemoteSearcher interface {
	Search(ctx context.Context, queryText string, filters relevance.SearchFilters, maxResults int) ([]relevance.RankedJob, error)
}

// JobReader hydrates records for either results path.
type JobReader interface {
	ActiveByIDs(ctx context.Context, ids []int64) (map[int64]*models.JobRecord, error)
	ActiveByRequisitionIDs(ctx context.Context, requisitionIDs []string) (map[string]*models.JobRecord, error)
	ActiveCandidates(ctx context.Context, filters models.SearchFilters, limit int) ([]*models.JobRecord, error)
}

// ResultCache memoizes scored id lists per query fingerprint.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) ([]cache.ScoredID, error)
	Put(ctx context.Context, fingerprint string, results []cache.ScoredID, ttl time.Duration) error
}

// MatchObserver feeds match latency into the otel pipeline, alongside the
// package-level prometheus metrics.
type MatchObserver interface {
	RecordMatchDuration(ctx context.Context, duration time.Duration, path string)
}

// Matcher is the query-time entry point. It composes cache, remote
// ranking and the local engine; remote failure never surfaces to the
// caller because the local fallback always runs.
type Matcher struct {
	remote      RemoteSearcher
	jobs        JobReader
	results     ResultCache
	obs         MatchObserver
	cacheTTL    time.Duration
	maxResults  int
	minQueryLen int
	log         logger.Logger
}

// NewMatcher builds a Matcher. obs may be nil.
func NewMatcher(remote RemoteSearcher, jobs JobReader, results ResultCache, obs MatchObserver, cfg *config.Config, log logger.Logger) *Matcher {
	return &Matcher{
		remote:      remote,
		jobs:        jobs,
		results:     results,
		obs:         obs,
		cacheTTL:    time.Duration(cfg.Cache.ExpiryHours) * time.Hour,
		maxResults:  cfg.Matching.MaxResults,
		minQueryLen: cfg.Sync.MinQueryTextLength,
		log:         log,
	}
}

// MatchByText returns jobs ranked against a free-text query, best first.
func (m *Matcher) MatchByText(ctx context.Context, text string, filters models.SearchFilters, maxResults int) (*models.MatchResult, error) {
	started := time.Now()
	text = strings.TrimSpace(text)
	if len(text) < m.minQueryLen {
		return nil, apperrors.NewQueryTooShortError(m.minQueryLen)
	}
	if maxResults <= 0 || maxResults > m.maxResults {
		maxResults = m.maxResults
	}

	fingerprint := queryFingerprint(text, filters, maxResults)

	if result, ok := m.fromCache(ctx, fingerprint); ok {
		m.observe(ctx, started, models.MatchFromCache)
		return result, nil
	}

	result, err := m.fromRemote(ctx, text, filters, maxResults)
	if err != nil {
		m.log.WithError(err).Warn("Remote relevance search failed, using local fallback", nil)
		result = nil
	}
	if result == nil {
		result, err = m.fromLocal(ctx, text, filters, maxResults)
		if err != nil {
			return nil, err
		}
	}

	// Empty result sets are never cached: the next sync may add matches.
	if len(result.Jobs) > 0 {
		entry := make([]cache.ScoredID, 0, len(result.Jobs))
		for _, sj := range result.Jobs {
			entry = append(entry, cache.ScoredID{JobID: sj.Job.ID, Score: sj.Score})
		}
		if err := m.results.Put(ctx, fingerprint, entry, m.cacheTTL); err != nil {
			m.log.WithError(err).Warn("Failed to cache match results", nil)
		}
	}

	m.observe(ctx, started, result.Source)
	return result, nil
}

func (m *Matcher) observe(ctx context.Context, started time.Time, path models.MatchSource) {
	elapsed := time.Since(started)
	metrics.MatchRequestsTotal.WithLabelValues(string(path)).Inc()
	metrics.MatchDuration.WithLabelValues(string(path)).Observe(elapsed.Seconds())
	if m.obs != nil {
		m.obs.RecordMatchDuration(ctx, elapsed, string(path))
	}
}

// fromCache hydrates a cached id list. A cache error is treated as a miss;
// the store and the engine can still answer.
func (m *Matcher) fromCache(ctx context.Context, fingerprint string) (*models.MatchResult, bool) {
	entry, err := m.results.Get(ctx, fingerprint)
	if err != nil {
		m.log.WithError(err).Warn("Result cache unavailable", nil)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}

	ids := make([]int64, 0, len(entry))
	for _, e := range entry {
		ids = append(ids, e.JobID)
	}
	found, err := m.jobs.ActiveByIDs(ctx, ids)
	if err != nil {
		m.log.WithError(err).Warn("Failed to hydrate cached results", nil)
		return nil, false
	}

	jobs := make([]models.ScoredJob, 0, len(entry))
	for _, e := range entry {
		if job, ok := found[e.JobID]; ok {
			jobs = append(jobs, models.ScoredJob{Job: job, Score: e.Score})
		}
	}
	if len(jobs) == 0 {
		return nil, false
	}
	return &models.MatchResult{Jobs: jobs, Source: models.MatchFromCache}, true
}

// fromRemote asks the ranking service and hydrates local records for its
// hits. A nil result with nil error means "empty, fall back".
func (m *Matcher) fromRemote(ctx context.Context, text string, filters models.SearchFilters, maxResults int) (*models.MatchResult, error) {
	ranked, err := m.remote.Search(ctx, text, remoteFilters(filters), maxResults)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	requisitionIDs := make([]string, 0, len(ranked))
	for _, r := range ranked {
		requisitionIDs = append(requisitionIDs, r.RequisitionID)
	}
	found, err := m.jobs.ActiveByRequisitionIDs(ctx, requisitionIDs)
	if err != nil {
		return nil, err
	}

	jobs := make([]models.ScoredJob, 0, len(ranked))
	for _, r := range ranked {
		if job, ok := found[r.RequisitionID]; ok {
			jobs = append(jobs, models.ScoredJob{Job: job, Score: r.Score})
		}
	}
	jobs = postFilter(jobs, filters)
	if len(jobs) == 0 {
		return nil, nil
	}

	sortByScore(jobs)
	if len(jobs) > maxResults {
		jobs = jobs[:maxResults]
	}
	return &models.MatchResult{Jobs: jobs, Source: models.MatchFromRemote}, nil
}

// fromLocal scores an oversampled candidate pool with the local engine.
func (m *Matcher) fromLocal(ctx context.Context, text string, filters models.SearchFilters, maxResults int) (*models.MatchResult, error) {
	candidates, err := m.jobs.ActiveCandidates(ctx, filters, maxResults*oversampleFactor)
	if err != nil {
		return nil, err
	}

	profile := NewQueryProfile(text)
	jobs := make([]models.ScoredJob, 0, len(candidates))
	for _, job := range candidates {
		score := profile.Score(job.Title, job.Description, job.CompanyDisplayName)
		if score > scoreFloor {
			jobs = append(jobs, models.ScoredJob{Job: job, Score: score})
		}
	}

	jobs = postFilter(jobs, filters)
	sortByScore(jobs)
	if len(jobs) > maxResults {
		jobs = jobs[:maxResults]
	}

	m.log.Info("Local engine scored candidates", map[string]interface{}{
		"candidates": len(candidates),
		"kept":       len(jobs),
	})
	return &models.MatchResult{Jobs: jobs, Source: models.MatchFromLocal}, nil
}

// postFilter applies the exact-match filters both result paths share.
func postFilter(jobs []models.ScoredJob, filters models.SearchFilters) []models.ScoredJob {
	kept := jobs[:0]
	for _, sj := range jobs {
		if filters.JobLevel != "" && sj.Job.JobLevel != filters.JobLevel {
			continue
		}
		if filters.InternshipOnly && !sj.Job.IsInternship {
			continue
		}
		if filters.MinSalary != nil && !meetsSalary(sj.Job, *filters.MinSalary) {
			continue
		}
		kept = append(kept, sj)
	}
	return kept
}

// meetsSalary accepts a job when either salary bound clears the threshold.
// Jobs without salary data are dropped; a caller asking for a minimum has
// no evidence the posting meets it.
func meetsSalary(job *models.JobRecord, min float64) bool {
	if job.SalaryMax != nil && *job.SalaryMax >= min {
		return true
	}
	return job.SalaryMin != nil && *job.SalaryMin >= min
}

// sortByScore orders best first, id ascending between equal scores so the
// order is stable.
func sortByScore(jobs []models.ScoredJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Score != jobs[j].Score {
			return jobs[i].Score > jobs[j].Score
		}
		return jobs[i].Job.ID < jobs[j].Job.ID
	})
}

func queryFingerprint(text string, filters models.SearchFilters, maxResults int) string {
	minSalary := ""
	if filters.MinSalary != nil {
		minSalary = fmt.Sprintf("%g", *filters.MinSalary)
	}
	return cache.Fingerprint(text,
		filters.Location,
		string(filters.JobLevel),
		minSalary,
		strconv.FormatBool(filters.InternshipOnly),
		strconv.FormatBool(filters.RemoteOnly),
		strconv.Itoa(maxResults),
	)
}

func remoteFilters(filters models.SearchFilters) relevance.SearchFilters {
	var remote relevance.SearchFilters
	if filters.Location != "" {
		remote.Locations = []string{filters.Location}
	}
	if filters.InternshipOnly {
		remote.EmploymentTypes = []string{string(models.EmploymentInternship)}
	}
	return remote
}
