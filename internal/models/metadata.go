package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SyncState stores the watermark of the last successful sync per entity.
type SyncState struct {
	bun.BaseModel `bun:"table:sync_state,alias:ss"`

	Entity            string    `bun:"entity,pk" json:"entity"`
	LastSyncTimestamp string    `bun:"last_sync_timestamp,notnull" json:"last_sync_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// RunKind distinguishes the two entry points.
type RunKind string

const (
	RunSync    RunKind = "sync"
	RunCleanup RunKind = "cleanup"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunNoChanges RunStatus = "no_changes"
	RunFailed    RunStatus = "failed"
)

// SyncRun tracks sync and cleanup runs and their outcomes.
type SyncRun struct {
	bun.BaseModel `bun:"table:sync_runs,alias:sr"`

	RunID        string     `bun:"run_id,pk" json:"run_id"`
	Entity       string     `bun:"entity,notnull" json:"entity"`
	Kind         RunKind    `bun:"kind,notnull" json:"kind"`
	StartedAt    time.Time  `bun:"started_at,notnull" json:"started_at"`
	FinishedAt   *time.Time `bun:"finished_at" json:"finished_at,omitempty"`
	Status       RunStatus  `bun:"status,notnull" json:"status"`
	RowsFetched  int        `bun:"rows_fetched,notnull,default:0" json:"rows_fetched"`
	RowsUpserted int64      `bun:"rows_upserted,notnull,default:0" json:"rows_upserted"`
	RowsFailed   int        `bun:"rows_failed,notnull,default:0" json:"rows_failed"`
	RowsDeleted  int64      `bun:"rows_deleted,notnull,default:0" json:"rows_deleted"`
	Columns      int        `bun:"columns,notnull,default:0" json:"columns"`
	Watermark    *string    `bun:"watermark" json:"watermark,omitempty"`
	ErrorLog     *string    `bun:"error_log" json:"error_log,omitempty"`
}

// Finish stamps the end of a run with its final status.
func (r *SyncRun) Finish(status RunStatus, err error) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Status = status
	if err != nil {
		msg := err.Error()
		r.ErrorLog = &msg
	}
}

// Duration returns the elapsed run time, or zero while still running.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
