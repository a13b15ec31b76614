// internal/models/filters.go
package models

// SearchFilters narrows a match query. Zero values mean "no constraint".
type SearchFilters struct {
	Location       string   `json:"location,omitempty"`
	JobLevel       JobLevel `json:"jobLevel,omitempty"`
	MinSalary      *float64 `json:"minSalary,omitempty"`
	InternshipOnly bool     `json:"internshipOnly,omitempty"`
	RemoteOnly     bool     `json:"remoteOnly,omitempty"`
}

// ScoredJob pairs a job with its relevance score in [0, 1].
type ScoredJob struct {
	Job   *JobRecord `json:"job"`
	Score float64    `json:"score"`
}

// MatchSource tells the caller which path produced the results.
type MatchSource string

const (
	MatchFromCache  MatchSource = "cache"
	MatchFromRemote MatchSource = "remote"
	MatchFromLocal  MatchSource = "local"
)

// MatchResult is the outcome of one match query.
type MatchResult struct {
	Jobs   []ScoredJob `json:"jobs"`
	Source MatchSource `json:"source"`
}

// ListFilters narrows a plain (unscored) job listing.
type ListFilters struct {
	Status         JobStatus `json:"status,omitempty"`
	Category       string    `json:"category,omitempty"`
	JobLevel       JobLevel  `json:"jobLevel,omitempty"`
	Location       string    `json:"location,omitempty"`
	MinSalary      *float64  `json:"minSalary,omitempty"`
	MaxSalary      *float64  `json:"maxSalary,omitempty"`
	InternshipOnly bool      `json:"internshipOnly,omitempty"`
	RemoteOnly     bool      `json:"remoteOnly,omitempty"`
}
