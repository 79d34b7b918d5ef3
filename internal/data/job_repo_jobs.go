package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/data/pgxutil"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	apperrors "github.com/croniumhq/cronium-engine/internal/errors"
)

// insertJobParams groups parameters for inserting a job within a transaction.
type insertJobParams struct {
	Req     *model.CreateJobRequest
	Payload []byte
	Meta    []byte
}

// SQL used by Claim to atomically claim a batch of queued jobs. SKIP LOCKED
// keeps concurrent claimers from blocking on each other; contested rows are
// simply absent from one claimer's result set.
const claimBatchUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'queued'
      AND orchestrator_id IS NULL
      AND scheduled_for <= $1
      AND ($2::text[] IS NULL OR type = ANY($2::text[]))
    ORDER BY priority DESC, scheduled_for ASC, created_at ASC
    LIMIT $3
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'claimed',
    orchestrator_id = $4,
    claimed_at = $5,
    lease_expires_at = $6,
    updated_at = $5
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.event_id, j.user_id, j.type, j.status, j.priority, j.payload, j.metadata, j.scheduled_for, j.orchestrator_id, j.attempts, j.claimed_at, j.started_at, j.completed_at, j.result, j.last_error, j.lease_expires_at, j.created_at, j.updated_at`

// Create creates a new job in the database with the given parameters.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload, meta, err := r.prepareJobData(req)
	if err != nil {
		return nil, err
	}

	p := &insertJobParams{
		Req:     req,
		Payload: payload,
		Meta:    meta,
	}

	var job *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			job, insertErr = r.insertJobInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}

	return job, nil
}

// CreateInTx inserts a job within an existing SQL transaction. The workflow
// coordinator uses this so a fan-out batch commits atomically.
func (r *JobRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload, meta, prepErr := r.prepareJobData(req)
	if prepErr != nil {
		return nil, prepErr
	}

	params := &insertJobParams{
		Req:     req,
		Payload: payload,
		Meta:    meta,
	}

	query, args := r.buildInsertQuery(params)
	row := sqlTx.QueryRowContext(ctx, query, args...)

	job, scanErr := scanJobFromRow(row)
	if scanErr != nil {
		// Duplicate fan-out inserts trip the unique index here; the mapped
		// Conflict lets the coordinator treat them as no-ops.
		return nil, fmt.Errorf("collect job: %w", apperrors.MapDBError(scanErr))
	}

	channel := "job_added_" + string(req.Type)
	if _, notifyErr := sqlTx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); notifyErr != nil {
		return nil, fmt.Errorf("send job notification: %w", notifyErr)
	}

	return job, nil
}

// prepareJobData normalizes the payload and metadata blobs for insertion.
func (r *JobRepo) prepareJobData(req *model.CreateJobRequest) ([]byte, []byte, error) {
	if req == nil {
		return nil, nil, errors.New("create job request is required")
	}

	payload := append([]byte(nil), req.Payload...)

	meta := []byte(`{}`)
	if len(req.Metadata) > 0 {
		if !json.Valid(req.Metadata) {
			return nil, nil, errors.New("metadata is not valid JSON")
		}
		meta = append([]byte(nil), req.Metadata...)
	}

	return payload, meta, nil
}

// insertJobInTx inserts a job within a pgx.Tx and returns the created job.
func (r *JobRepo) insertJobInTx(ctx context.Context, tx pgx.Tx, params *insertJobParams) (*model.Job, error) {
	if params == nil || params.Req == nil {
		return nil, errors.New("insert job params are required")
	}

	query, args := r.buildInsertQuery(params)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect job: %w", collectErr)
	}

	channel := "job_added_" + string(params.Req.Type)
	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send job notification: %w", execErr)
	}

	return job, nil
}

// buildInsertQuery builds an INSERT statement for a job based on the provided parameters.
func (r *JobRepo) buildInsertQuery(p *insertJobParams) (string, []any) {
	if p == nil || p.Req == nil {
		return "", nil
	}

	query := `
      INSERT INTO jobs(event_id, user_id, type, status, priority, payload, metadata, scheduled_for)
      VALUES ($1,$2,$3,'queued',$4,$5,$6,$7)
      RETURNING ` + jobColumns

	var scheduledFor time.Time
	if p.Req.ScheduledFor != nil {
		scheduledFor = p.Req.ScheduledFor.UTC()
	} else {
		scheduledFor = r.timeProvider.Now().UTC()
	}

	args := []any{
		p.Req.EventID,
		p.Req.UserID,
		p.Req.Type,
		p.Req.Priority,
		p.Payload,
		p.Meta,
		scheduledFor,
	}
	return query, args
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

// collectJobsFromRows collects every job in the result set.
func collectJobsFromRows(rows pgx.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJobFromRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload, metadata, result                []byte
	orchestratorID, lastError                sql.NullString
	claimedAt, startedAt, completedAt, lease sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.EventID,
		&job.UserID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&d.payload,
		&d.metadata,
		&job.ScheduledFor,
		&d.orchestratorID,
		&job.Attempts,
		&d.claimedAt,
		&d.startedAt,
		&d.completedAt,
		&d.result,
		&d.lastError,
		&d.lease,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Payload = cloneJSON(d.payload)
	job.Metadata = cloneJSON(d.metadata)
	job.Result = cloneJSONOrNil(d.result)
	job.OrchestratorID = cloneNullableString(d.orchestratorID)
	job.LastError = cloneNullableString(d.lastError)
	job.ClaimedAt = cloneNullableTime(d.claimedAt)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.lease)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneJSONOrNil(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Claim atomically claims up to BatchSize queued jobs for the given
// orchestrator, stamping ownership and a lease in one statement.
func (r *JobRepo) Claim(
	ctx context.Context,
	req model.ClaimRequest,
	leaseSeconds int,
) ([]*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	// pgx maps a []string parameter to text[] natively; nil means no filter.
	var typeFilter []string
	if len(req.TypeFilter) > 0 {
		typeFilter = make([]string, len(req.TypeFilter))
		for i, t := range req.TypeFilter {
			typeFilter[i] = string(t)
		}
	}

	var jobs []*model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				claimBatchUpdateSQL,
				currentTime.UTC(),
				typeFilter,
				req.BatchSize,
				req.OrchestratorID,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("claim jobs: %w", qerr)
			}
			defer rows.Close()

			claimed, cerr := collectJobsFromRows(rows)
			if cerr != nil {
				return fmt.Errorf("claim jobs: %w", cerr)
			}
			jobs = claimed
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	return jobs, nil
}

// Start moves a claimed job to running. The orchestrator id must match the
// claim holder; a stale or foreign start is rejected.
func (r *JobRepo) Start(ctx context.Context, id, orchestratorID string) (*model.Job, error) {
	currentTime := r.timeProvider.Now().UTC()

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			UPDATE jobs
			SET status = 'running',
			    started_at = COALESCE(started_at, $3),
			    updated_at = $3
			WHERE id = $1 AND status = 'claimed' AND orchestrator_id = $2
			RETURNING `+jobColumns, id, orchestratorID, currentTime)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := collectJobFromRows(rows)
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMissedUpdate(ctx, id, model.JobStatusRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	return job, nil
}

// Finish moves a running job to completed or failed. Failed jobs get their
// attempt counter bumped; both paths clear the lease so the reaper never
// touches terminal rows.
func (r *JobRepo) Finish(ctx context.Context, params core.FinishJobParams) (*model.Job, error) {
	if params.Status != model.JobStatusCompleted && params.Status != model.JobStatusFailed {
		return nil, fmt.Errorf("%w: finish requires completed or failed, got %s", ErrInvalidTransition, params.Status)
	}

	var resultBlob []byte
	if params.Result != nil {
		blob, err := json.Marshal(params.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal execution result: %w", err)
		}
		resultBlob = blob
	}

	var errMsg any
	if params.ErrMsg != "" {
		errMsg = params.ErrMsg
	}

	attemptBump := 0
	if params.Status == model.JobStatusFailed {
		attemptBump = 1
	}

	currentTime := r.timeProvider.Now().UTC()

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			UPDATE jobs
			SET status = $2,
			    result = COALESCE($3, result),
			    last_error = $4,
			    attempts = attempts + $5,
			    completed_at = $6,
			    lease_expires_at = NULL,
			    updated_at = $6
			WHERE id = $1 AND status = 'running'
			RETURNING `+jobColumns,
			params.ID, params.Status, resultBlob, errMsg, attemptBump, currentTime)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := collectJobFromRows(rows)
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMissedUpdate(ctx, params.ID, params.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("finish job: %w", err)
	}
	return job, nil
}

// Cancel moves a job to cancelled from any non-terminal state.
func (r *JobRepo) Cancel(ctx context.Context, id string) (*model.Job, error) {
	currentTime := r.timeProvider.Now().UTC()

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			UPDATE jobs
			SET status = 'cancelled',
			    completed_at = $2,
			    lease_expires_at = NULL,
			    updated_at = $2
			WHERE id = $1 AND status IN ('queued', 'claimed', 'running')
			RETURNING `+jobColumns, id, currentTime)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := collectJobFromRows(rows)
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMissedUpdate(ctx, id, model.JobStatusCancelled)
	}
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return job, nil
}

// classifyMissedUpdate distinguishes a missing row from an illegal transition
// after a guarded UPDATE matched nothing.
func (r *JobRepo) classifyMissedUpdate(ctx context.Context, id string, wanted model.JobStatus) error {
	job, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("re-check job after update: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, wanted)
}

// Stats returns per-status job counts, optionally scoped to one user.
func (r *JobRepo) Stats(ctx context.Context, userID string) (*model.JobStats, error) {
	var filter any
	if userID != "" {
		filter = userID
	}

	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'queued')    AS queued,
    count(*) FILTER (WHERE status = 'claimed')   AS claimed,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*) FILTER (WHERE status = 'cancelled') AS cancelled
  FROM jobs
  WHERE $1::text IS NULL OR user_id = $1
  `, filter).Scan(
		&s.Queued,
		&s.Claimed,
		&s.Running,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	channel := "job_added_" + string(jobType)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}
