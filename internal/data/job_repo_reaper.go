package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for engine maintenance operations.
const (
	advisoryLockReaperMajor   = 1000
	advisoryLockReaperRequeue = 1 // minor key for RequeueExpired
	advisoryLockReaperDelete  = 2 // minor key for DeleteOldJobs
)

// RequeueExpired returns claimed and running jobs with an expired lease to
// the queue, clearing ownership so a live orchestrator can claim them again.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of jobs requeued.
func (r *JobRepo) RequeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperRequeue).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'queued',
				    orchestrator_id = NULL,
				    claimed_at = NULL,
				    lease_expires_at = NULL,
				    updated_at = $1
				WHERE status IN ('claimed', 'running')
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $1
			`, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldJobs deletes terminal jobs whose completed_at precedes the cutoff.
// Processes up to batchSize jobs per call to prevent long locks and I/O
// spikes. Non-terminal jobs are never deleted regardless of age.
// Returns the number of jobs deleted.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status IN ('completed', 'failed', 'cancelled')
					  AND (completed_at < $1 OR (completed_at IS NULL AND updated_at < $1))
					ORDER BY COALESCE(completed_at, updated_at)
					LIMIT $2
				)
			`, cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
