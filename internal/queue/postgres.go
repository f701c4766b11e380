package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/windmill-labs/windmill-worker/pkg/config"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// PostgresClient is the durable Client, built on jmoiron/sqlx + lib/pq
// directly around the queue/completed_job tables.
type PostgresClient struct {
	db  *sqlx.DB
	log logger.Logger
}

// NewPostgresClient opens a pooled connection to the queue database.
func NewPostgresClient(cfg config.DatabaseConfig) (*PostgresClient, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping queue database: %w", err)
	}

	return &PostgresClient{
		db:  db,
		log: logger.Default().WithComponent("queue"),
	}, nil
}

// Pull claims one eligible job with FOR UPDATE SKIP LOCKED so many
// concurrent pullers never race on the same row.
func (c *PostgresClient) Pull(ctx context.Context, workerName string, tags []string) (*Job, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pull tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT * FROM queue
		WHERE running = false AND scheduled_for <= now() AND suspend = 0
		 AND ($2::text[] IS NULL OR tag = ANY($2))
		ORDER BY priority DESC NULLS LAST, scheduled_for ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var job Job
	var tagArg interface{}
	if len(tags) > 0 {
		tagArg = tags
	}
	if err := tx.GetContext(ctx, &job, query, workerName, tagArg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pull select: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue SET running = true, worker = $1, last_ping = $2 WHERE id = $3`,
		workerName, now, job.ID,
	); err != nil {
		return nil, fmt.Errorf("pull claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pull commit: %w", err)
	}

	job.Running = true
	job.Worker = &workerName
	job.LastPing = &now
	return &job, nil
}

// Ping updates last_ping for every job this worker currently holds.
func (c *PostgresClient) Ping(ctx context.Context, workerName string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE queue SET last_ping = now() WHERE worker = $1 AND running = true`,
		workerName,
	)
	if err != nil {
		c.log.Error("ping failed", "worker", workerName, "error", err)
	}
	return err
}

func (c *PostgresClient) IsCanceled(ctx context.Context, jobID string) (bool, error) {
	var canceled bool
	err := c.db.GetContext(ctx, &canceled, `SELECT canceled FROM queue WHERE id = $1`, jobID)
	return canceled, err
}

func (c *PostgresClient) Cancel(ctx context.Context, jobID, reason, canceledBy string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE queue SET canceled = true, canceled_reason = $1, canceled_by = $2 WHERE id = $3`,
		reason, canceledBy, jobID,
	)
	return err
}

// Complete moves job from queue to completed_job in a single transaction
// and notifies listeners via a Postgres NOTIFY channel.
func (c *PostgresClient) Complete(ctx context.Context, job *Job, success bool, result json.RawMessage, logs string) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback()

	durationMS := time.Since(job.CreatedAt).Milliseconds()

	insert := `
		INSERT INTO completed_job (
			id, workspace_id, parent_job, created_by, created_at, scheduled_for,
			job_kind, language, script_hash, script_path, schedule_path,
			raw_code, raw_flow, args, flow_status, is_flow_step, same_worker,
			canceled, canceled_reason, canceled_by, logs, permissioned_as,
			priority, tag, success, result, duration_ms
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,$21,$22,$23,$24,$25,$26,$27
		)`
	if _, err := tx.ExecContext(ctx, insert,
		job.ID, job.WorkspaceID, job.ParentJob, job.CreatedBy, job.CreatedAt, job.ScheduledFor,
		job.JobKind, job.Language, job.ScriptHash, job.ScriptPath, job.SchedulePath,
		job.RawCode, job.RawFlow, job.Args, job.FlowStatus, job.IsFlowStep, job.SameWorker,
		job.Canceled, job.CanceledReason, job.CanceledBy, logs, job.PermissionedAs,
		job.Priority, job.Tag, success, result, durationMS,
	); err != nil {
		return fmt.Errorf("complete insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE id = $1`, job.ID); err != nil {
		return fmt.Errorf("complete delete: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify('job_completed', $1)`, job.ID); err != nil {
		return fmt.Errorf("complete notify: %w", err)
	}

	return tx.Commit()
}

func (c *PostgresClient) Push(ctx context.Context, job *Job) error {
	insert := `
		INSERT INTO queue (
			id, workspace_id, parent_job, created_by, created_at, scheduled_for,
			running, job_kind, language, script_hash, script_path, schedule_path,
			raw_code, raw_flow, args, flow_status, is_flow_step, same_worker,
			suspend, canceled, permissioned_as, priority, tag, logs
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,$21,$22,$23,$24
		)`
	_, err := c.db.ExecContext(ctx, insert,
		job.ID, job.WorkspaceID, job.ParentJob, job.CreatedBy, job.CreatedAt, job.ScheduledFor,
		job.Running, job.JobKind, job.Language, job.ScriptHash, job.ScriptPath, job.SchedulePath,
		job.RawCode, job.RawFlow, job.Args, job.FlowStatus, job.IsFlowStep, job.SameWorker,
		job.Suspend, job.Canceled, job.PermissionedAs, job.Priority, job.Tag, job.Logs,
	)
	return err
}

func (c *PostgresClient) Get(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.db.GetContext(ctx, &job, `SELECT * FROM queue WHERE id = $1`, jobID); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *PostgresClient) UpdateFlowStatus(ctx context.Context, jobID string, status json.RawMessage) error {
	_, err := c.db.ExecContext(ctx, `UPDATE queue SET flow_status = $1 WHERE id = $2`, status, jobID)
	return err
}

// AppendLogs implements the Log Accumulator's DB write: a single
// concatenating UPDATE, serialized per-job by the supervisor's own
// single-flight discipline (§4.3) rather than by locking here.
func (c *PostgresClient) AppendLogs(ctx context.Context, jobID, chunk string) (int, error) {
	var newLen int
	err := c.db.GetContext(ctx, &newLen,
		`UPDATE queue SET logs = logs || $1 WHERE id = $2 RETURNING length(logs)`,
		chunk, jobID,
	)
	return newLen, err
}

func (c *PostgresClient) CountRunning(ctx context.Context, concurrencyKey string) (int, error) {
	var count int
	err := c.db.GetContext(ctx, &count,
		`SELECT count(*) FROM queue WHERE tag = $1 AND running = true`,
		concurrencyKey,
	)
	return count, err
}

func (c *PostgresClient) ListZombies(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	var jobs []*Job
	err := c.db.SelectContext(ctx, &jobs,
		`SELECT * FROM queue WHERE running = true AND last_ping < $1`,
		cutoff,
	)
	return jobs, err
}

func (c *PostgresClient) ReleaseZombie(ctx context.Context, jobID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE queue SET running = false, worker = NULL WHERE id = $1`,
		jobID,
	)
	return err
}

func (c *PostgresClient) Close() error {
	return c.db.Close()
}
