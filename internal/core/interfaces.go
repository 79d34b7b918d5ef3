// Package core defines the ports between the engine's service layer and its
// collaborators (hexagonal architecture). Services depend on these
// interfaces, never on concrete repositories or gateways.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// JobRepository defines the durable job store operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// Claim atomically moves up to BatchSize queued jobs to claimed for the
	// given orchestrator. Contested rows are simply absent from the result;
	// two concurrent claimers never receive the same job.
	Claim(ctx context.Context, req model.ClaimRequest, leaseSeconds int) ([]*model.Job, error)
	Start(ctx context.Context, id, orchestratorID string) (*model.Job, error)
	Finish(ctx context.Context, params FinishJobParams) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
	Stats(ctx context.Context, userID string) (*model.JobStats, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
}

// FinishJobParams groups parameters for the terminal completed/failed
// transition of a running job.
type FinishJobParams struct {
	ID     string
	Status model.JobStatus // completed or failed
	Result *model.ExecutionResult
	ErrMsg string
}

// ReaperRepository defines the maintenance operations over the job store.
type ReaperRepository interface {
	// RequeueExpired returns expired claimed/running jobs to the queue so a
	// live orchestrator can pick them up again.
	RequeueExpired(ctx context.Context) (int64, error)
	// DeleteOldJobs removes terminal jobs whose completed_at precedes the
	// cutoff. Non-terminal jobs are never touched regardless of age.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// DeleteOldJobsParams groups parameters for ReaperRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// WorkflowRepository persists workflow graphs. Graphs are replaced
// wholesale inside one transaction; there is no partial mutation.
type WorkflowRepository interface {
	GetGraph(ctx context.Context, workflowID string) (*model.WorkflowGraph, error)
	ReplaceGraph(ctx context.Context, graph *model.WorkflowGraph) error
	// FindGraphsByEventID returns every workflow graph containing a node
	// bound to the given event.
	FindGraphsByEventID(ctx context.Context, eventID int64) ([]*model.WorkflowGraph, error)
}

// ExecutionRepository persists workflow executions and their node records.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, exec *model.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*model.WorkflowExecution, error)
	CreateNodeExecution(ctx context.Context, rec *model.NodeExecution) error
	// UpdateNodeStatusByJobID stamps the terminal status of the node record
	// correlated with the job, returning the updated record when one exists.
	UpdateNodeStatusByJobID(ctx context.Context, jobID string, status model.JobStatus) (*model.NodeExecution, error)
	// FinalizeExecution aggregates node outcomes into a terminal execution
	// status once no node record remains non-terminal.
	FinalizeExecution(ctx context.Context, executionID string) (*model.WorkflowExecution, error)
}

// WorkflowCoordinator is the fan-out port the job service calls on every
// terminal transition. Implementations must treat failures as their own:
// the triggering job's terminal status is authoritative either way.
type WorkflowCoordinator interface {
	HandleJobTerminal(ctx context.Context, job *model.Job) error
}

// JobTemplate is the execution descriptor registered for an event. The
// coordinator expands it into a CreateJobRequest when an edge fires.
type JobTemplate struct {
	EventID  int64
	Type     model.JobType
	Payload  json.RawMessage
	Priority int
}

// EventResolver maps event ids to their registered job templates.
type EventResolver interface {
	ResolveJobTemplate(ctx context.Context, eventID int64) (*JobTemplate, error)
}

// LogUpdate is the payload pushed to subscribers when a job's log
// projection changes.
type LogUpdate struct {
	Status   model.LogStatus `json:"status"`
	Output   *string         `json:"output,omitempty"`
	Error    *string         `json:"error,omitempty"`
	EndTime  *time.Time      `json:"endTime,omitempty"`
	Duration *int64          `json:"duration,omitempty"` // milliseconds
}

// BroadcastResult reports the outcome of a broadcast attempt.
type BroadcastResult struct {
	Success  bool
	Attempts int
	Err      error
}

// BroadcastGateway pushes job/log updates to subscribers with bounded
// retry. It must be safe to call from the job-completion path: it reports
// failure through the result, never by panicking or blocking indefinitely.
type BroadcastGateway interface {
	Broadcast(ctx context.Context, logID string, update LogUpdate) BroadcastResult
}

// VariableStore is the durable per-user variable storage scripts read and
// write through the helper shim. Writes are last-write-wins per key.
type VariableStore interface {
	GetUserVariables(ctx context.Context, userID string) (map[string]json.RawMessage, error)
	SetUserVariable(ctx context.Context, userID, key string, value json.RawMessage) error
	DeleteUserVariableByKey(ctx context.Context, userID, key string) error
}

// ScriptExecutor runs one script against a remote target. Execution-level
// failures are captured inside the result (stderr populated, stdout empty),
// never returned as an error from this boundary.
type ScriptExecutor interface {
	ExecuteScript(ctx context.Context, req ExecuteScriptRequest) *model.ExecutionResult
	ExecuteCommand(ctx context.Context, target model.SSHTarget, command string) *model.ExecutionResult
}

// ExecuteScriptRequest groups parameters for ScriptExecutor.ExecuteScript.
type ExecuteScriptRequest struct {
	UserID    string
	Target    model.SSHTarget
	Language  model.ScriptLanguage
	Content   string
	Input     json.RawMessage
	Variables map[string]json.RawMessage
	Timeout   time.Duration
}
