package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/croniumhq/cronium-engine/internal/data/pgxutil"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// ExecutionRepo persists workflow executions and their node records. Node
// records hold the job id as a weak reference only; the job store owns the
// row, so no FK points into the jobs table.
type ExecutionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewExecutionRepo creates a new ExecutionRepo instance.
func NewExecutionRepo(db *sql.DB, tp TimeProvider, logger *slog.Logger) *ExecutionRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ExecutionRepo{DB: db, timeProvider: tp, logger: logger}
}

// CreateExecution inserts one firing of a workflow trigger.
func (r *ExecutionRepo) CreateExecution(ctx context.Context, exec *model.WorkflowExecution) error {
	if exec == nil {
		return errors.New("execution is required")
	}
	if exec.Status == "" {
		exec.Status = model.ExecutionStatusRunning
	}

	startedAt := exec.StartedAt
	if startedAt.IsZero() {
		startedAt = r.timeProvider.Now().UTC()
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, user_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at
	`, exec.ID, exec.WorkflowID, exec.UserID, exec.Status, startedAt.UTC())
	if err := row.Scan(&exec.StartedAt); err != nil {
		return fmt.Errorf("insert workflow execution: %w", err)
	}
	return nil
}

// GetExecution retrieves a workflow execution by id.
func (r *ExecutionRepo) GetExecution(ctx context.Context, id string) (*model.WorkflowExecution, error) {
	var exec model.WorkflowExecution
	var completedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, status, started_at, completed_at
		FROM workflow_executions
		WHERE id = $1
	`, id).Scan(&exec.ID, &exec.WorkflowID, &exec.UserID, &exec.Status, &exec.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow execution: %w", err)
	}
	exec.CompletedAt = cloneNullableTime(completedAt)
	return &exec, nil
}

// CreateNodeExecution inserts the record correlating a workflow node with
// the job queued for it.
func (r *ExecutionRepo) CreateNodeExecution(ctx context.Context, rec *model.NodeExecution) error {
	if rec == nil {
		return errors.New("node execution is required")
	}
	if rec.Status == "" {
		rec.Status = model.JobStatusQueued
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO node_executions (id, execution_id, node_id, job_id, sequence_order, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rec.ID, rec.ExecutionID, rec.NodeID, rec.JobID, rec.SequenceOrder, rec.Status)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return fmt.Errorf("insert node execution: %w", err)
	}
	return nil
}

// UpdateNodeStatusByJobID stamps the status of the node record correlated
// with the job. Terminal statuses also stamp completed_at.
func (r *ExecutionRepo) UpdateNodeStatusByJobID(ctx context.Context, jobID string, status model.JobStatus) (*model.NodeExecution, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status: %s", status)
	}

	var completedAt any
	if status.Terminal() {
		completedAt = r.timeProvider.Now().UTC()
	}

	var rec model.NodeExecution
	var recCompletedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, `
		UPDATE node_executions
		SET status = $2,
		    completed_at = COALESCE($3, completed_at)
		WHERE job_id = $1
		RETURNING id, execution_id, node_id, job_id, sequence_order, status, created_at, completed_at
	`, jobID, status, completedAt).Scan(
		&rec.ID, &rec.ExecutionID, &rec.NodeID, &rec.JobID,
		&rec.SequenceOrder, &rec.Status, &rec.CreatedAt, &recCompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNodeExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update node execution by job: %w", err)
	}
	rec.CompletedAt = cloneNullableTime(recCompletedAt)
	return &rec, nil
}

// FinalizeExecution aggregates node outcomes into a terminal execution
// status once no node record remains non-terminal. Returns the execution
// unchanged while any node is still pending or running.
func (r *ExecutionRepo) FinalizeExecution(ctx context.Context, executionID string) (*model.WorkflowExecution, error) {
	var exec *model.WorkflowExecution
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var open, failed, cancelled int
			if err := tx.QueryRowContext(ctx, `
				SELECT
				  count(*) FILTER (WHERE status IN ('queued', 'claimed', 'running')) AS open,
				  count(*) FILTER (WHERE status = 'failed')                          AS failed,
				  count(*) FILTER (WHERE status = 'cancelled')                       AS cancelled
				FROM node_executions
				WHERE execution_id = $1
			`, executionID).Scan(&open, &failed, &cancelled); err != nil {
				return fmt.Errorf("aggregate node outcomes: %w", err)
			}

			if open > 0 {
				return nil
			}

			status := model.ExecutionStatusCompleted
			switch {
			case failed > 0:
				status = model.ExecutionStatusFailed
			case cancelled > 0:
				status = model.ExecutionStatusCancelled
			}

			var e model.WorkflowExecution
			var completedAt sql.NullTime
			err := tx.QueryRowContext(ctx, `
				UPDATE workflow_executions
				SET status = $2,
				    completed_at = COALESCE(completed_at, $3)
				WHERE id = $1 AND status = 'running'
				RETURNING id, workflow_id, user_id, status, started_at, completed_at
			`, executionID, status, r.timeProvider.Now().UTC()).Scan(
				&e.ID, &e.WorkflowID, &e.UserID, &e.Status, &e.StartedAt, &completedAt,
			)
			if errors.Is(err, sql.ErrNoRows) {
				// Already finalized by a concurrent caller.
				return nil
			}
			if err != nil {
				return fmt.Errorf("finalize workflow execution: %w", err)
			}
			e.CompletedAt = cloneNullableTime(completedAt)
			exec = &e
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return r.GetExecution(ctx, executionID)
	}
	return exec, nil
}
