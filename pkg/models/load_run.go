package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one batch run.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
)

// RunSummary is the end-of-batch accounting. It is always produced, even
// when the run partially fails.
type RunSummary struct {
	RecordsRead     int `json:"records_read"`
	RecordsRejected int `json:"records_rejected"`

	EntitiesCreated int `json:"entities_created"`
	VersionsCreated int `json:"versions_created"`
	Unchanged       int `json:"unchanged"`
	MergeFailures   int `json:"merge_failures"`

	FactsInserted int `json:"facts_inserted"`
	FactsUpdated  int `json:"facts_updated"`
	FactFailures  int `json:"fact_failures"`

	QualityViolations int `json:"quality_violations"`
	FailedRules       int `json:"failed_rules"`
}

// LoadRun is one row of the batch run journal.
type LoadRun struct {
	ID           uuid.UUID  `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	Summary      RunSummary `json:"summary"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
