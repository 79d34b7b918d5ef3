// Package model defines the core data types and structures used throughout the cronium orchestration engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the kind of work a job carries.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

const (
	// JobTypeScript represents a script execution job.
	JobTypeScript JobType = "script"
	// JobTypeHTTPRequest represents an HTTP call job.
	JobTypeHTTPRequest JobType = "http_request"
	// JobTypeToolAction represents a tool-plugin action job (Slack, Discord, ...).
	JobTypeToolAction JobType = "tool_action"

	// JobStatusQueued indicates a job is waiting to be claimed.
	JobStatusQueued JobStatus = "queued"
	// JobStatusClaimed indicates an orchestrator holds exclusive ownership of the job.
	JobStatusClaimed JobStatus = "claimed"
	// JobStatusRunning indicates the job is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled before reaching another terminal state.
	JobStatusCancelled JobStatus = "cancelled"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs match a claim request.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeScript || t == JobTypeHTTPRequest || t == JobTypeToolAction
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusClaimed, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal returns true for statuses that end the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Cancellation is reachable from any non-terminal state; every
// other move follows queued -> claimed -> running -> {completed, failed}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusCancelled {
		return true
	}
	switch s {
	case JobStatusQueued:
		return next == JobStatusClaimed
	case JobStatusClaimed:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}

// Job represents one unit of scheduled execution with its full lifecycle state.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	EventID        int64           `json:"event_id"                   db:"event_id"`
	UserID         string          `json:"user_id"                    db:"user_id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Metadata       json.RawMessage `json:"metadata"                   db:"metadata"`
	ScheduledFor   time.Time       `json:"scheduled_for"              db:"scheduled_for"`
	OrchestratorID *string         `json:"orchestrator_id,omitempty"  db:"orchestrator_id"`
	Attempts       int             `json:"attempts"                   db:"attempts"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"       db:"claimed_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	Result         json.RawMessage `json:"result,omitempty"           db:"result"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// JobMetadata carries the workflow correlation fields stored in Job.Metadata.
type JobMetadata struct {
	WorkflowExecutionID string `json:"workflowExecutionId,omitempty"`
	// NodeID identifies the graph node this job was enqueued for. Two nodes
	// bound to the same event fire as distinct jobs.
	NodeID        string `json:"nodeId,omitempty"`
	SequenceOrder int    `json:"sequenceOrder,omitempty"`
	Condition     *bool  `json:"condition,omitempty"`
	LogID         string `json:"logId,omitempty"`
}

// ParseJobMetadata decodes the metadata blob of a job. A missing or empty
// blob yields the zero value, not an error.
func ParseJobMetadata(raw json.RawMessage) (JobMetadata, error) {
	var meta JobMetadata
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return JobMetadata{}, fmt.Errorf("parse job metadata: %w", err)
	}
	return meta, nil
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	EventID      int64           `json:"event_id"`
	UserID       string          `json:"user_id"`
	Type         JobType         `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
}

// Validate validates the CreateJobRequest fields, including that the payload
// decodes to the variant matching the job type.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if r.EventID <= 0 {
		return errors.New("event id is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	payload, err := ParseJobPayload(r.Payload)
	if err != nil {
		return err
	}
	return payload.ValidateFor(r.Type)
}

// JobStats represents counts of jobs per lifecycle state.
type JobStats struct {
	Queued    int `json:"queued"`
	Claimed   int `json:"claimed"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// ClaimRequest groups parameters for claiming a batch of queued jobs.
type ClaimRequest struct {
	OrchestratorID string
	BatchSize      int
	TypeFilter     []JobType
}

// Validate validates the ClaimRequest fields.
func (r *ClaimRequest) Validate() error {
	if strings.TrimSpace(r.OrchestratorID) == "" {
		return errors.New("orchestrator id is required")
	}
	if r.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	for _, t := range r.TypeFilter {
		if !t.Valid() {
			return fmt.Errorf("invalid job type in filter: %s", t)
		}
	}
	return nil
}
