// internal/store/jobs.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

const jobColumns = `id, external_id, requisition_id, remote_name, title, description,
	company_display_name, location, loc_city, loc_state, loc_country, loc_lat, loc_lon,
	employment_type, job_level, salary_min, salary_max, salary_currency, category,
	redirect_url, status, is_internship, is_remote, created_at, updated_at, expires_at,
	last_synced_at`

// JobStore persists canonical job records in Postgres. All writes go
// through the atomic upsert keyed by external_id so overlapping sync runs
// cannot lose updates.
type JobStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewJobStore(db *sql.DB, log logger.Logger) *JobStore {
	return &JobStore{db: db, log: log}
}

// FindByExternalID returns the record for a listing-source id, or nil if
// none exists.
func (s *JobStore) FindByExternalID(ctx context.Context, externalID string) (*models.JobRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE external_id = $1`, jobColumns)
	return s.findOne(ctx, query, externalID)
}

// FindByRequisitionID returns the record for a requisition id, or nil if
// none exists.
func (s *JobStore) FindByRequisitionID(ctx context.Context, requisitionID string) (*models.JobRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE requisition_id = $1`, jobColumns)
	return s.findOne(ctx, query, requisitionID)
}

func (s *JobStore) findOne(ctx context.Context, query string, arg interface{}) (*models.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	record, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return record, nil
}

// Upsert inserts a record or refreshes the existing one with the same
// external_id. It reports whether a new row was created, and fills in the
// record's ID and timestamps from the database.
func (s *JobStore) Upsert(ctx context.Context, job *models.JobRecord) (bool, error) {
	var lat, lon sql.NullFloat64
	var city, state, country string
	if loc := job.LocationStructured; loc != nil {
		city, state, country = loc.City, loc.State, loc.Country
		lat = toNullFloat(loc.Lat)
		lon = toNullFloat(loc.Lon)
	}

	query := `
		INSERT INTO jobs (
			external_id, requisition_id, remote_name, title, description,
			company_display_name, location, loc_city, loc_state, loc_country,
			loc_lat, loc_lon, employment_type, job_level, salary_min, salary_max,
			salary_currency, category, redirect_url, status, is_internship,
			is_remote, created_at, updated_at, expires_at, last_synced_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, NOW(), NOW(), $23, $24
		)
		ON CONFLICT (external_id) DO UPDATE SET
			remote_name = COALESCE(NULLIF(EXCLUDED.remote_name, ''), jobs.remote_name),
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			company_display_name = EXCLUDED.company_display_name,
			location = EXCLUDED.location,
			loc_city = EXCLUDED.loc_city,
			loc_state = EXCLUDED.loc_state,
			loc_country = EXCLUDED.loc_country,
			loc_lat = EXCLUDED.loc_lat,
			loc_lon = EXCLUDED.loc_lon,
			employment_type = EXCLUDED.employment_type,
			job_level = EXCLUDED.job_level,
			salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max,
			salary_currency = EXCLUDED.salary_currency,
			category = EXCLUDED.category,
			redirect_url = EXCLUDED.redirect_url,
			status = 'active',
			is_internship = EXCLUDED.is_internship,
			is_remote = EXCLUDED.is_remote,
			updated_at = NOW(),
			expires_at = EXCLUDED.expires_at,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id, requisition_id, created_at, updated_at, (xmax = 0)`

	var created bool
	err := s.db.QueryRowContext(ctx, query,
		job.ExternalID, job.RequisitionID, job.RemoteName, job.Title, job.Description,
		job.CompanyDisplayName, job.Location, city, state, country, lat, lon,
		string(job.EmploymentType), string(job.JobLevel),
		toNullFloat(job.SalaryMin), toNullFloat(job.SalaryMax),
		job.SalaryCurrency, job.Category, job.RedirectURL, string(job.Status),
		job.IsInternship, job.IsRemote,
		toNullTime(job.ExpiresAt), toNullTime(job.LastSyncedAt),
	).Scan(&job.ID, &job.RequisitionID, &job.CreatedAt, &job.UpdatedAt, &created)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, apperrors.NewRecordConflictError(job.ExternalID, err)
		}
		return false, apperrors.NewStoreUnavailableError(err)
	}
	return created, nil
}

// ExpireStale marks active records not refreshed since the cutoff as
// expired. One statement over the whole table, run once per sync.
func (s *JobStore) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError(err)
	}
	return affected, nil
}

// DeleteStale removes expired records untouched since the cutoff. Retention
// housekeeping, invoked by the scheduler, never by the query path.
func (s *JobStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = 'expired' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError(err)
	}
	return affected, nil
}

// ActiveByIDs hydrates active records for a set of primary keys. Used by
// the cache-hit path, which stores ids and re-reads records on every hit.
func (s *JobStore) ActiveByIDs(ctx context.Context, ids []int64) (map[int64]*models.JobRecord, error) {
	if len(ids) == 0 {
		return map[int64]*models.JobRecord{}, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM jobs WHERE status = 'active' AND id = ANY($1)`, jobColumns)
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	found := make(map[int64]*models.JobRecord, len(ids))
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		found[record.ID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return found, nil
}

// ActiveByRequisitionIDs hydrates active records for a set of requisition
// ids in one query. Missing ids are simply absent from the result map.
func (s *JobStore) ActiveByRequisitionIDs(ctx context.Context, requisitionIDs []string) (map[string]*models.JobRecord, error) {
	if len(requisitionIDs) == 0 {
		return map[string]*models.JobRecord{}, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM jobs WHERE status = 'active' AND requisition_id = ANY($1)`, jobColumns)
	rows, err := s.db.QueryContext(ctx, query, pq.Array(requisitionIDs))
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	found := make(map[string]*models.JobRecord, len(requisitionIDs))
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		found[record.RequisitionID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return found, nil
}

// ActiveCandidates returns active records passing coarse filters, newest
// first, capped at limit. The local engine scores this pool.
func (s *JobStore) ActiveCandidates(ctx context.Context, filters models.SearchFilters, limit int) ([]*models.JobRecord, error) {
	listFilters := models.ListFilters{
		Status:         models.StatusActive,
		Location:       filters.Location,
		InternshipOnly: filters.InternshipOnly,
		RemoteOnly:     filters.RemoteOnly,
	}
	return s.List(ctx, listFilters, limit, 0)
}

// List returns records matching the filters, newest first.
func (s *JobStore) List(ctx context.Context, filters models.ListFilters, limit, offset int) ([]*models.JobRecord, error) {
	var conditions []string
	var args []interface{}

	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filters.Status != "" {
		addCondition("status = $%d", string(filters.Status))
	}
	if filters.Category != "" {
		addCondition("category = $%d", filters.Category)
	}
	if filters.JobLevel != "" {
		addCondition("job_level = $%d", string(filters.JobLevel))
	}
	if filters.Location != "" {
		addCondition("location ILIKE $%d", "%"+filters.Location+"%")
	}
	if filters.MinSalary != nil {
		args = append(args, *filters.MinSalary)
		conditions = append(conditions,
			fmt.Sprintf("(salary_min >= $%d OR salary_max >= $%d)", len(args), len(args)))
	}
	if filters.MaxSalary != nil {
		addCondition("salary_min <= $%d", *filters.MaxSalary)
	}
	if filters.InternshipOnly {
		conditions = append(conditions, "is_internship = TRUE")
	}
	if filters.RemoteOnly {
		conditions = append(conditions, "is_remote = TRUE")
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs`, jobColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var records []*models.JobRecord
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return records, nil
}

// CountByStatus reports how many records are in each lifecycle state.
func (s *JobStore) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		counts[models.JobStatus(status)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.JobRecord, error) {
	var job models.JobRecord
	var remoteName, company, location, city, state, country sql.NullString
	var category, redirectURL sql.NullString
	var lat, lon, salaryMin, salaryMax sql.NullFloat64
	var expiresAt, lastSyncedAt sql.NullTime
	var employmentType, jobLevel, status string

	err := row.Scan(
		&job.ID, &job.ExternalID, &job.RequisitionID, &remoteName, &job.Title,
		&job.Description, &company, &location, &city, &state, &country, &lat, &lon,
		&employmentType, &jobLevel, &salaryMin, &salaryMax, &job.SalaryCurrency,
		&category, &redirectURL, &status, &job.IsInternship, &job.IsRemote,
		&job.CreatedAt, &job.UpdatedAt, &expiresAt, &lastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	job.RemoteName = remoteName.String
	job.CompanyDisplayName = company.String
	job.Location = location.String
	job.Category = category.String
	job.RedirectURL = redirectURL.String
	job.EmploymentType = models.EmploymentType(employmentType)
	job.JobLevel = models.JobLevel(jobLevel)
	job.Status = models.JobStatus(status)
	job.SalaryMin = fromNullFloat(salaryMin)
	job.SalaryMax = fromNullFloat(salaryMax)
	job.ExpiresAt = fromNullTime(expiresAt)
	job.LastSyncedAt = fromNullTime(lastSyncedAt)

	if city.Valid || state.Valid || country.Valid || lat.Valid || lon.Valid {
		job.LocationStructured = &models.StructuredLocation{
			City:    city.String,
			State:   state.String,
			Country: country.String,
			Lat:     fromNullFloat(lat),
			Lon:     fromNullFloat(lon),
		}
	}
	return &job, nil
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toNullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func fromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
