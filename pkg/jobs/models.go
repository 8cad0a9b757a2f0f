// Package jobs provides a database-backed queue for scheduled bulk imports.
// Jobs survive process restarts; workers claim them atomically, so several
// instances can poll the same queue.
package jobs

import (
	"time"
)

// JobState represents the lifecycle state of an import job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// ImportJob is the GORM model for a queued bulk import. PayloadPath points at
// the CSV file to import; the file must stay readable until the job reaches a
// terminal state.
type ImportJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant         string     `gorm:"column:tenant;index:idx_import_job_tenant_state,priority:1;default:default;not null"`
	Format         string     `gorm:"column:format;not null"`
	PayloadPath    string     `gorm:"column:payload_path;not null"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          JobState   `gorm:"column:state;index:idx_import_job_tenant_state,priority:2;index:idx_import_job_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey string     `gorm:"column:idempotency_key;uniqueIndex:idx_import_job_idemp_key"`
	DevicesCreated int        `gorm:"column:devices_created"`
	RecordsCreated int        `gorm:"column:records_created"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (ImportJob) TableName() string { return "import_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *ImportJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}
