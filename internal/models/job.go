// internal/models/job.go
package models

import "time"

// EmploymentType enumerates the normalized employment types.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "FULL_TIME"
	EmploymentPartTime   EmploymentType = "PART_TIME"
	EmploymentContractor EmploymentType = "CONTRACTOR"
	EmploymentInternship EmploymentType = "INTERNSHIP"
)

// JobLevel enumerates the normalized seniority levels.
type JobLevel string

const (
	LevelEntry     JobLevel = "ENTRY_LEVEL"
	LevelMid       JobLevel = "MID_LEVEL"
	LevelSenior    JobLevel = "SENIOR_LEVEL"
	LevelExecutive JobLevel = "EXECUTIVE"
)

// JobStatus enumerates the record lifecycle states. Transitions only go
// active -> expired; re-ingestion of a still-current posting keeps the
// record active and resets its expiry.
type JobStatus string

const (
	StatusActive  JobStatus = "active"
	StatusExpired JobStatus = "expired"
)

// StructuredLocation is the parsed location of a posting.
type StructuredLocation struct {
	City    string   `json:"city,omitempty"`
	State   string   `json:"state,omitempty"`
	Country string   `json:"country,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// JobRecord is one external posting, normalized. ExternalID is the natural
// key from the listing source; RequisitionID is the locally generated
// globally unique key used by the remote relevance service.
type JobRecord struct {
	ID            int64  `json:"id"`
	ExternalID    string `json:"externalId"`
	RequisitionID string `json:"requisitionId"`
	RemoteName    string `json:"remoteName,omitempty"`

	Title              string              `json:"title"`
	Description        string              `json:"description"`
	CompanyDisplayName string              `json:"companyDisplayName,omitempty"`
	Location           string              `json:"location,omitempty"`
	LocationStructured *StructuredLocation `json:"locationStructured,omitempty"`

	EmploymentType EmploymentType `json:"employmentType"`
	JobLevel       JobLevel       `json:"jobLevel"`

	SalaryMin      *float64 `json:"salaryMin,omitempty"`
	SalaryMax      *float64 `json:"salaryMax,omitempty"`
	SalaryCurrency string   `json:"salaryCurrency"`

	Category    string `json:"category,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`

	Status       JobStatus `json:"status"`
	IsInternship bool      `json:"isInternship"`
	IsRemote     bool      `json:"isRemote"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// FullText returns the text the matching engine scores a job on. The title
// is doubled so title terms outweigh body terms.
func (j *JobRecord) FullText() string {
	return j.Title + " " + j.Title + " " + j.Description + " " + j.CompanyDisplayName
}
