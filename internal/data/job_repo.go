package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status update would move a job
	// backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrJobNotClaimed is returned when starting a job the orchestrator does not hold.
	ErrJobNotClaimed = errors.New("job is not claimed by this orchestrator")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the durable job queue.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  event_id,
  user_id,
  type,
  status,
  priority,
  payload,
  metadata,
  scheduled_for,
  orchestrator_id,
  attempts,
  claimed_at,
  started_at,
  completed_at,
  result,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
