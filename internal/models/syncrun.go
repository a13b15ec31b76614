// internal/models/syncrun.go
package models

import "time"

// RunType distinguishes how a sync run was initiated.
type RunType string

const (
	RunScheduled    RunType = "scheduled"
	RunManual       RunType = "manual"
	RunBulkCategory RunType = "bulk-category"
)

// RunStatus is the lifecycle state of a sync run log entry.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// SyncRun is the audit record for one ingestion pass. The counters satisfy
// Created + Updated + Failed == Fetched for every finished run.
type SyncRun struct {
	ID       string  `json:"id"`
	RunType  RunType `json:"runType"`
	Query    string  `json:"query,omitempty"`
	Category string  `json:"category,omitempty"`

	Status RunStatus `json:"status"`

	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Expired int `json:"expired"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
