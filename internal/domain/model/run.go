// Package model defines the core data types and structures used throughout the scrapewatch run system.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the internal status of a scrape run.
type RunStatus string

const (
	// RunStatusPending indicates a run was launched but has not started producing work yet.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the platform is actively executing the run.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates the run finished and its dataset is ready.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed indicates the run terminated with an error on the platform side.
	RunStatusFailed RunStatus = "failed"
	// RunStatusTimedOut indicates the run exceeded the platform's execution time limit.
	RunStatusTimedOut RunStatus = "timed_out"
	// RunStatusAborted indicates the run was aborted by an operator.
	RunStatusAborted RunStatus = "aborted"
)

// MaxResurrectAttempts bounds automatic recovery per run. Once a run has
// consumed this many resurrect attempts it stays terminal until an operator
// resets the counter.
const MaxResurrectAttempts = 3

// Valid returns true if the RunStatus is a known internal status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusTimedOut, RunStatusAborted:
		return true
	}
	return false
}

// Terminal returns true if the status is a terminal state. A terminal
// failed/timed_out run may still loop back to running via recovery.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut, RunStatusAborted:
		return true
	}
	return false
}

// Recoverable returns true if the status is eligible for automatic recovery.
func (s RunStatus) Recoverable() bool {
	return s == RunStatusFailed || s == RunStatusTimedOut
}

// UnmarshalText implements encoding.TextUnmarshaler for RunStatus to allow env/query parsing.
func (s *RunStatus) UnmarshalText(text []byte) error {
	v := RunStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid RunStatus: %q", string(text))
	}
	*s = v
	return nil
}

// Run is the persisted mirror of one external platform run. Rows are created
// elsewhere when a job is launched; the monitor owns every subsequent
// mutation of status, counters, and timestamps.
type Run struct {
	ID             string          `json:"id"                        db:"id"`
	ExternalJobID  string          `json:"external_job_id"           db:"external_job_id"`
	ProducerKind   ProducerKind    `json:"producer_kind"             db:"producer_kind"`
	Status         RunStatus       `json:"status"                    db:"status"`
	ItemsCount     int             `json:"items_count"               db:"items_count"`
	DurationMs     int64           `json:"duration_ms"               db:"duration_ms"`
	DatasetRef     *string         `json:"dataset_ref,omitempty"     db:"dataset_ref"`
	InputConfig    json.RawMessage `json:"input_config"              db:"input_config"`
	ErrorMessage   *string         `json:"error_message,omitempty"   db:"error_message"`
	ResurrectCount int             `json:"resurrect_count"           db:"resurrect_count"`
	StartedAt      *time.Time      `json:"started_at,omitempty"      db:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"     db:"finished_at"`
	CreatedAt      time.Time       `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                db:"updated_at"`
}

// SourceIdentifier returns the scrape target recorded in the run's input
// config (target group URL or handle). Empty when the launcher did not
// record one; extraction then falls back to the external job id so the
// composite member identity stays unique per run source.
func (r *Run) SourceIdentifier() string {
	if len(r.InputConfig) == 0 {
		return r.ExternalJobID
	}
	var input struct {
		Target   string `json:"target"`
		GroupURL string `json:"group_url"`
	}
	if err := json.Unmarshal(r.InputConfig, &input); err != nil {
		return r.ExternalJobID
	}
	if input.Target != "" {
		return input.Target
	}
	if input.GroupURL != "" {
		return input.GroupURL
	}
	return r.ExternalJobID
}

// RunStatusUpdate carries the delta the monitor persists after a status check.
type RunStatusUpdate struct {
	Status       RunStatus
	ItemsCount   int
	DurationMs   int64
	DatasetRef   *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// RunSummary reports run counts per internal status.
type RunSummary struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Aborted   int `json:"aborted"`
}

// Total returns the total number of runs across all statuses.
func (s RunSummary) Total() int {
	return s.Pending + s.Running + s.Succeeded + s.Failed + s.TimedOut + s.Aborted
}
