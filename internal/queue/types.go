// Package queue implements the durable queue client: atomic job claim,
// heartbeat ping, cancellation poll/set and claim-to-completion transition.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Kind is the job_kind enum column of the queue table.
type Kind string

const (
	KindScript       Kind = "script"
	KindPreview      Kind = "preview"
	KindDependencies Kind = "dependencies"
	KindFlow         Kind = "flow"
	KindFlowPreview  Kind = "flow_preview"
)

// Language identifies the interpreter a script job runs under.
type Language string

const (
	LanguagePython Language = "python3"
	LanguageDeno   Language = "deno"
	LanguageGo     Language = "go"
)

// Job is one row of the queue table.
type Job struct {
	ID             string          `db:"id"              json:"id"`
	WorkspaceID    string          `db:"workspace_id"    json:"workspace_id"`
	ParentJob      *string         `db:"parent_job"      json:"parent_job,omitempty"`
	CreatedBy      string          `db:"created_by"      json:"created_by"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	ScheduledFor   time.Time       `db:"scheduled_for"   json:"scheduled_for"`
	Running        bool            `db:"running"         json:"running"`
	Worker         *string         `db:"worker"          json:"worker,omitempty"`
	LastPing       *time.Time      `db:"last_ping"       json:"last_ping,omitempty"`
	JobKind        Kind            `db:"job_kind"        json:"job_kind"`
	Language       *Language       `db:"language"        json:"language,omitempty"`
	ScriptHash     *int64          `db:"script_hash"     json:"script_hash,omitempty"`
	ScriptPath     *string         `db:"script_path"     json:"script_path,omitempty"`
	SchedulePath   *string         `db:"schedule_path"   json:"schedule_path,omitempty"`
	RawCode        *string         `db:"raw_code"        json:"raw_code,omitempty"`
	RawFlow        json.RawMessage `db:"raw_flow"        json:"raw_flow,omitempty"`
	Args           json.RawMessage `db:"args"            json:"args,omitempty"`
	FlowStatus     json.RawMessage `db:"flow_status"     json:"flow_status,omitempty"`
	IsFlowStep     bool            `db:"is_flow_step"    json:"is_flow_step"`
	SameWorker     bool            `db:"same_worker"     json:"same_worker"`
	Suspend        int             `db:"suspend"         json:"suspend"`
	Canceled       bool            `db:"canceled"        json:"canceled"`
	CanceledReason *string         `db:"canceled_reason" json:"canceled_reason,omitempty"`
	CanceledBy     *string         `db:"canceled_by"     json:"canceled_by,omitempty"`
	Logs           string          `db:"logs"            json:"logs"`
	PermissionedAs string          `db:"permissioned_as" json:"permissioned_as"`
	Priority       *int            `db:"priority"        json:"priority,omitempty"`
	Tag            string          `db:"tag"             json:"tag"`
}

// CompletedJob is a row of the completed_job table.
type CompletedJob struct {
	Job
	Success    bool            `db:"success"     json:"success"`
	Result     json.RawMessage `db:"result"      json:"result,omitempty"`
	DurationMS int64           `db:"duration_ms" json:"duration_ms"`
}

// Client is the queue's external surface.
type Client interface {
	// Pull atomically claims one eligible job for workerName, or returns
	// (nil, nil) if none are eligible right now.
	Pull(ctx context.Context, workerName string, tags []string) (*Job, error)

	// Ping updates last_ping for every job currently leased by workerName.
	Ping(ctx context.Context, workerName string) error

	// IsCanceled performs a cheap poll of the canceled flag.
	IsCanceled(ctx context.Context, jobID string) (bool, error)

	// Cancel marks a job canceled without killing its child; the
	// supervisor observes this on its next poll.
	Cancel(ctx context.Context, jobID, reason, canceledBy string) error

	// Complete moves job from queue to completed_job in one transaction.
	Complete(ctx context.Context, job *Job, success bool, result json.RawMessage, logs string) error

	// Push enqueues a new job (flow step dispatch, subflow creation).
	Push(ctx context.Context, job *Job) error

	// Get fetches a single queue row by id.
	Get(ctx context.Context, jobID string) (*Job, error)

	// UpdateFlowStatus persists a flow job's updated FlowStatus JSON.
	UpdateFlowStatus(ctx context.Context, jobID string, status json.RawMessage) error

	// AppendLogs appends a chunk to a job's logs column (Log Accumulator,
	// §4.3). Returns the new total length so callers can enforce
	// MAX_LOG_SIZE without a second round trip.
	AppendLogs(ctx context.Context, jobID, chunk string) (int, error)

	// CountRunning reports how many jobs sharing concurrencyKey are
	// currently running, for concurrency-limited flows.
	CountRunning(ctx context.Context, concurrencyKey string) (int, error)

	// ListZombies returns running jobs whose last_ping predates cutoff,
	// for the zombie reaper.
	ListZombies(ctx context.Context, cutoff time.Time) ([]*Job, error)

	// ReleaseZombie flips running=false so another worker can reclaim it.
	ReleaseZombie(ctx context.Context, jobID string) error

	Close() error
}
