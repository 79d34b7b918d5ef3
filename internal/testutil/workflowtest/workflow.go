// Package workflowtest provides an integration test harness wiring the job
// queue and workflow coordinator over a real Postgres schema.
package workflowtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/data"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	"github.com/croniumhq/cronium-engine/internal/service"
	"github.com/croniumhq/cronium-engine/internal/testutil"
)

// Harness wires real repositories and services against a test database so
// tests can drive the full enqueue -> claim -> finish -> fan-out cycle.
type Harness struct {
	t  testutil.TestingTB
	db *sql.DB

	JobRepo       *data.JobRepo
	WorkflowRepo  *data.WorkflowRepo
	ExecutionRepo *data.ExecutionRepo
	TemplateRepo  *data.EventTemplateRepo
	VariableRepo  *data.VariableRepo

	Jobs      *service.JobService
	Workflows *service.WorkflowService
}

// Options configures the workflow test harness.
type Options struct {
	// JobLease sets the default job lease duration.
	JobLease time.Duration
	// Broadcaster optionally pushes log updates during terminal transitions.
	Broadcaster core.BroadcastGateway
}

// NewHarness creates a harness with all components wired up.
func NewHarness(t testutil.TestingTB, db *sql.DB, opts Options) *Harness {
	t.Helper()

	if opts.JobLease == 0 {
		opts.JobLease = 30 * time.Second
	}

	h := &Harness{
		t:             t,
		db:            db,
		JobRepo:       data.NewJobRepo(db, data.RepoConfig{}),
		WorkflowRepo:  data.NewWorkflowRepo(db, nil),
		ExecutionRepo: data.NewExecutionRepo(db, nil, nil),
		TemplateRepo:  data.NewEventTemplateRepo(db),
		VariableRepo:  data.NewVariableRepo(db, nil),
	}

	workflows, err := service.NewWorkflowService(service.WorkflowServiceOptions{
		Graphs:     h.WorkflowRepo,
		Executions: h.ExecutionRepo,
		Jobs:       h.JobRepo,
		Events:     h.TemplateRepo,
	})
	if err != nil {
		t.Fatalf("create workflow service: %v", err)
	}
	h.Workflows = workflows

	h.Jobs = service.MustNewJobService(service.JobServiceOptions{
		Repo:         h.JobRepo,
		DefaultLease: opts.JobLease,
		Coordinator:  workflows,
		Broadcaster:  opts.Broadcaster,
	})

	return h
}

// Close releases harness resources.
func (h *Harness) Close() {
	h.t.Helper()
	h.Jobs.StopAllListeners()
}

// SeedTemplate registers an event template the coordinator expands when a
// workflow node fires.
func (h *Harness) SeedTemplate(eventID int64, jobType model.JobType, payload string) {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := h.TemplateRepo.UpsertTemplate(ctx, &core.JobTemplate{
		EventID: eventID,
		Type:    jobType,
		Payload: json.RawMessage(payload),
	})
	if err != nil {
		h.t.Fatalf("seed template for event %d: %v", eventID, err)
	}
}

// SeedScriptTemplate registers a bash script template for the event.
func (h *Harness) SeedScriptTemplate(eventID int64) {
	h.t.Helper()
	h.SeedTemplate(eventID, model.JobTypeScript,
		`{"script": {"type": "BASH", "content": "echo step"}}`)
}

// SaveGraph validates and persists a workflow graph.
func (h *Harness) SaveGraph(graph *model.WorkflowGraph) {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.Workflows.ValidateAndSave(ctx, graph); err != nil {
		h.t.Fatalf("save graph %s: %v", graph.WorkflowID, err)
	}
}

// LinearGraph builds and persists a chain of n nodes joined by ON_SUCCESS
// edges, seeding a script template for every node's event. Node and edge IDs
// are fresh UUIDs; the returned graph carries them for assertions.
func (h *Harness) LinearGraph(n int, startEventID int64) *model.WorkflowGraph {
	h.t.Helper()

	graph := &model.WorkflowGraph{WorkflowID: uuid.NewString()}
	for i := 0; i < n; i++ {
		eventID := startEventID + int64(i)
		h.SeedScriptTemplate(eventID)
		graph.Nodes = append(graph.Nodes, model.WorkflowNode{
			ID:      uuid.NewString(),
			EventID: eventID,
		})
	}
	for i := 0; i < n-1; i++ {
		graph.Edges = append(graph.Edges, model.WorkflowEdge{
			ID:             uuid.NewString(),
			SourceNodeID:   graph.Nodes[i].ID,
			TargetNodeID:   graph.Nodes[i+1].ID,
			ConnectionType: model.ConnectionOnSuccess,
		})
	}
	h.SaveGraph(graph)
	return graph
}

// EnqueueScriptJob creates a standalone queued script job outside any
// workflow, for queue-level tests.
func (h *Harness) EnqueueScriptJob(eventID int64, userID string) *model.Job {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := h.Jobs.Create(ctx, &model.CreateJobRequest{
		EventID: eventID,
		UserID:  userID,
		Type:    model.JobTypeScript,
		Payload: json.RawMessage(`{"script": {"type": "BASH", "content": "echo step"}}`),
	})
	if err != nil {
		h.t.Fatalf("enqueue job for event %d: %v", eventID, err)
	}
	return job
}

// Trigger starts a workflow execution for the given user.
func (h *Harness) Trigger(workflowID, userID string) *model.WorkflowExecution {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := h.Workflows.TriggerWorkflow(ctx, workflowID, userID)
	if err != nil {
		h.t.Fatalf("trigger workflow %s: %v", workflowID, err)
	}
	return exec
}

// ClaimOne claims a single queued job for the given orchestrator, waiting up
// to the deadline for one to become available.
func (h *Harness) ClaimOne(orchestratorID string, wait time.Duration) *model.Job {
	h.t.Helper()

	deadline := time.Now().Add(wait)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		jobs, err := h.Jobs.Claim(ctx, model.ClaimRequest{
			OrchestratorID: orchestratorID,
			BatchSize:      1,
		}, 0)
		cancel()
		switch {
		case err == nil && len(jobs) > 0:
			return jobs[0]
		case err != nil && !errors.Is(err, model.ErrNoJobsAvailable):
			h.t.Fatalf("claim job: %v", err)
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("no job became claimable within %v", wait)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// RunToCompletion claims, starts and completes a job as the orchestrator
// would, returning the terminal row.
func (h *Harness) RunToCompletion(orchestratorID string) *model.Job {
	h.t.Helper()

	job := h.ClaimOne(orchestratorID, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.Jobs.Start(ctx, job.ID, orchestratorID); err != nil {
		h.t.Fatalf("start job %s: %v", job.ID, err)
	}
	done, err := h.Jobs.Complete(ctx, job.ID, &model.ExecutionResult{ExitCode: 0})
	if err != nil {
		h.t.Fatalf("complete job %s: %v", job.ID, err)
	}
	return done
}

// FailJob claims, starts and fails a job, returning the terminal row.
func (h *Harness) FailJob(orchestratorID, errMsg string) *model.Job {
	h.t.Helper()

	job := h.ClaimOne(orchestratorID, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.Jobs.Start(ctx, job.ID, orchestratorID); err != nil {
		h.t.Fatalf("start job %s: %v", job.ID, err)
	}
	failed, err := h.Jobs.Fail(ctx, job.ID, errMsg, &model.ExecutionResult{ExitCode: 1, Error: errMsg})
	if err != nil {
		h.t.Fatalf("fail job %s: %v", job.ID, err)
	}
	return failed
}

// Execution fetches the current state of a workflow execution.
func (h *Harness) Execution(executionID string) *model.WorkflowExecution {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := h.ExecutionRepo.GetExecution(ctx, executionID)
	if err != nil {
		h.t.Fatalf("get execution %s: %v", executionID, err)
	}
	return exec
}

// WaitForExecutionStatus polls until the execution reaches the wanted status
// or the timeout elapses.
func (h *Harness) WaitForExecutionStatus(
	executionID string,
	want model.ExecutionStatus,
	timeout time.Duration,
) *model.WorkflowExecution {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		exec := h.Execution(executionID)
		if exec.Status == want {
			return exec
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("execution %s stuck at %s, want %s", executionID, exec.Status, want)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// QueuedJobCount counts jobs currently queued, for fan-out assertions.
func (h *Harness) QueuedJobCount() int {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n int
	row := h.db.QueryRowContext(ctx, "SELECT count(*) FROM jobs WHERE status = 'queued'")
	if err := row.Scan(&n); err != nil {
		h.t.Fatalf("count queued jobs: %v", err)
	}
	return n
}

// UniqueOrchestratorID returns a fresh orchestrator identity for a test.
func UniqueOrchestratorID() string {
	return fmt.Sprintf("test-orch-%s", uuid.NewString()[:8])
}

// WithHarness sets up a harness over an auto-selected test database and
// tears it down after fn returns.
func WithHarness(t testutil.TestingTB, opts Options, fn func(*Harness)) {
	t.Helper()

	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		h := NewHarness(t, db, opts)
		defer h.Close()
		fn(h)
	})
}
