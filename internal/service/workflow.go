package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/data"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	"github.com/croniumhq/cronium-engine/internal/domain/workflow"
	apperrors "github.com/croniumhq/cronium-engine/internal/errors"
)

// WorkflowServiceOptions groups dependencies for WorkflowService.
type WorkflowServiceOptions struct {
	Graphs     core.WorkflowRepository  // Required: workflow graph store
	Executions core.ExecutionRepository // Required: execution record store
	Jobs       core.JobRepository       // Required: job queue
	Events     core.EventResolver       // Required: event -> job template resolution
	Logger     *slog.Logger             // Optional: structured logger
}

// WorkflowService validates and persists workflow graphs, and coordinates
// fan-out when jobs bound to workflow events reach a terminal state.
type WorkflowService struct {
	graphs     core.WorkflowRepository
	executions core.ExecutionRepository
	jobs       core.JobRepository
	events     core.EventResolver
	logger     *slog.Logger
}

// NewWorkflowService constructs a new WorkflowService.
func NewWorkflowService(opts WorkflowServiceOptions) (*WorkflowService, error) {
	if opts.Graphs == nil {
		return nil, errors.New("WorkflowRepository is required")
	}
	if opts.Executions == nil {
		return nil, errors.New("ExecutionRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Events == nil {
		return nil, errors.New("EventResolver is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "workflow_service")
	}

	return &WorkflowService{
		graphs:     opts.Graphs,
		executions: opts.Executions,
		jobs:       opts.Jobs,
		events:     opts.Events,
		logger:     logger,
	}, nil
}

// ValidateAndSave runs the structural validator and replaces the stored
// graph only when both checks pass. The violation error (merge vs cycle)
// is returned verbatim so callers can present it.
func (s *WorkflowService) ValidateAndSave(ctx context.Context, graph *model.WorkflowGraph) error {
	if graph == nil {
		return errors.New("graph is required")
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	if result := workflow.Validate(graph.Nodes, graph.Edges); !result.Valid {
		return result.Err
	}

	if err := s.graphs.ReplaceGraph(ctx, graph); err != nil {
		return fmt.Errorf("save workflow graph: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "workflow graph saved",
			"workflow_id", graph.WorkflowID,
			"nodes", len(graph.Nodes),
			"edges", len(graph.Edges),
		)
	}
	return nil
}

// GetGraph loads the stored graph for a workflow.
func (s *WorkflowService) GetGraph(ctx context.Context, workflowID string) (*model.WorkflowGraph, error) {
	graph, err := s.graphs.GetGraph(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow graph %s: %w", workflowID, err)
	}
	return graph, nil
}

// TriggerWorkflow starts one execution of a workflow: it re-validates the
// stored graph, creates the execution record, and enqueues a job for every
// root node (nodes with no incoming edge) at sequence order zero.
func (s *WorkflowService) TriggerWorkflow(ctx context.Context, workflowID, userID string) (*model.WorkflowExecution, error) {
	graph, err := s.graphs.GetGraph(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}

	if result := workflow.Validate(graph.Nodes, graph.Edges); !result.Valid {
		return nil, fmt.Errorf("stored workflow %s is invalid: %w", workflowID, result.Err)
	}

	roots := graph.RootNodes()
	if len(roots) == 0 {
		return nil, fmt.Errorf("workflow %s has no root nodes", workflowID)
	}

	exec := &model.WorkflowExecution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     model.ExecutionStatusRunning,
	}
	if err := s.executions.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create workflow execution: %w", err)
	}

	for _, root := range roots {
		s.enqueueNode(ctx, enqueueNodeParams{
			Execution:     exec,
			Node:          root,
			UserID:        userID,
			SequenceOrder: 0,
		})
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "workflow triggered",
			"workflow_id", workflowID,
			"execution_id", exec.ID,
			"roots", len(roots),
		)
	}

	return exec, nil
}

// HandleJobTerminal evaluates the fan-out for a job that reached a terminal
// state. Fan-out failures are logged per edge; the triggering terminal
// status is authoritative regardless.
func (s *WorkflowService) HandleJobTerminal(ctx context.Context, job *model.Job) error {
	if job == nil || !job.Status.Terminal() {
		return nil
	}

	meta, err := model.ParseJobMetadata(job.Metadata)
	if err != nil {
		return fmt.Errorf("parse job metadata: %w", err)
	}

	condition := resultCondition(job)

	if meta.WorkflowExecutionID != "" {
		return s.continueExecution(ctx, job, meta, condition)
	}
	return s.startExecutionsForEvent(ctx, job, condition)
}

// continueExecution advances an in-flight execution: stamp the node record,
// fire the outgoing edges of the node that just terminated, then try to
// finalize the execution.
func (s *WorkflowService) continueExecution(
	ctx context.Context,
	job *model.Job,
	meta model.JobMetadata,
	condition *bool,
) error {
	rec, err := s.executions.UpdateNodeStatusByJobID(ctx, job.ID, job.Status)
	if errors.Is(err, data.ErrNodeExecutionNotFound) {
		// The execution record is gone; nothing to advance.
		return nil
	}
	if err != nil {
		return fmt.Errorf("update node execution: %w", err)
	}

	exec, err := s.executions.GetExecution(ctx, rec.ExecutionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", rec.ExecutionID, err)
	}

	graph, err := s.graphs.GetGraph(ctx, exec.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", exec.WorkflowID, err)
	}

	s.fireEdges(ctx, fireEdgesParams{
		Execution:     exec,
		Graph:         graph,
		NodeID:        rec.NodeID,
		Job:           job,
		Condition:     condition,
		SequenceOrder: rec.SequenceOrder + 1,
	})

	if _, err := s.executions.FinalizeExecution(ctx, exec.ID); err != nil {
		return fmt.Errorf("finalize execution %s: %w", exec.ID, err)
	}
	return nil
}

// startExecutionsForEvent handles a terminal job that was not part of an
// execution yet: every workflow containing a node bound to the job's event
// gets a fresh execution whose downstream edges fire from that node.
func (s *WorkflowService) startExecutionsForEvent(ctx context.Context, job *model.Job, condition *bool) error {
	graphs, err := s.graphs.FindGraphsByEventID(ctx, job.EventID)
	if err != nil {
		return fmt.Errorf("find workflows for event %d: %w", job.EventID, err)
	}

	for _, graph := range graphs {
		for _, node := range graph.NodesByEventID(job.EventID) {
			edges := s.firingEdges(graph, node.ID, job.Status, condition)
			if len(edges) == 0 {
				continue
			}

			exec := &model.WorkflowExecution{
				ID:         uuid.NewString(),
				WorkflowID: graph.WorkflowID,
				UserID:     job.UserID,
				Status:     model.ExecutionStatusRunning,
			}
			if err := s.executions.CreateExecution(ctx, exec); err != nil {
				s.logFanOutError(ctx, job, graph.WorkflowID, err)
				continue
			}

			s.fireEdges(ctx, fireEdgesParams{
				Execution:     exec,
				Graph:         graph,
				NodeID:        node.ID,
				Job:           job,
				Condition:     condition,
				SequenceOrder: 1,
			})
		}
	}
	return nil
}

type fireEdgesParams struct {
	Execution     *model.WorkflowExecution
	Graph         *model.WorkflowGraph
	NodeID        string
	Job           *model.Job
	Condition     *bool
	SequenceOrder int
}

// fireEdges evaluates each outgoing edge of the node and enqueues a job for
// every edge whose gate matches the terminal outcome.
func (s *WorkflowService) fireEdges(ctx context.Context, p fireEdgesParams) {
	for _, edge := range s.firingEdges(p.Graph, p.NodeID, p.Job.Status, p.Condition) {
		target := p.Graph.NodeByID(edge.TargetNodeID)
		if target == nil {
			continue
		}

		params := enqueueNodeParams{
			Execution:     p.Execution,
			Node:          *target,
			UserID:        p.Job.UserID,
			SequenceOrder: p.SequenceOrder,
		}
		if edge.ConnectionType == model.ConnectionOnCondition {
			params.Condition = p.Condition
		}
		s.enqueueNode(ctx, params)
	}
}

// firingEdges returns the outgoing edges of the node whose connection gate
// matches the terminal outcome. The four gates are evaluated independently.
func (s *WorkflowService) firingEdges(
	graph *model.WorkflowGraph,
	nodeID string,
	status model.JobStatus,
	condition *bool,
) []model.WorkflowEdge {
	var fired []model.WorkflowEdge
	for _, edge := range graph.OutgoingEdges(nodeID) {
		if edgeFires(edge.ConnectionType, status, condition) {
			fired = append(fired, edge)
		}
	}
	return fired
}

// edgeFires applies the connection-type gate to a terminal outcome.
func edgeFires(ct model.ConnectionType, status model.JobStatus, condition *bool) bool {
	switch ct {
	case model.ConnectionAlways:
		return status == model.JobStatusCompleted || status == model.JobStatusFailed
	case model.ConnectionOnSuccess:
		return status == model.JobStatusCompleted
	case model.ConnectionOnFailure:
		return status == model.JobStatusFailed
	case model.ConnectionOnCondition:
		// Fires whenever the result carries a boolean at all; the value is
		// passed downstream in the fan-out job's metadata for the target to
		// interpret.
		return status == model.JobStatusCompleted && condition != nil
	}
	return false
}

type enqueueNodeParams struct {
	Execution     *model.WorkflowExecution
	Node          model.WorkflowNode
	UserID        string
	SequenceOrder int
	Condition     *bool
}

// enqueueNode resolves the node's event template, creates the job carrying
// the execution correlation metadata, and records the node execution. A
// duplicate-key violation means another terminal handler already created
// this firing; it is a no-op.
func (s *WorkflowService) enqueueNode(ctx context.Context, p enqueueNodeParams) {
	tpl, err := s.events.ResolveJobTemplate(ctx, p.Node.EventID)
	if err != nil {
		s.logFanOutError(ctx, nil, p.Execution.WorkflowID, fmt.Errorf("resolve event %d: %w", p.Node.EventID, err))
		return
	}

	meta := model.JobMetadata{
		WorkflowExecutionID: p.Execution.ID,
		NodeID:              p.Node.ID,
		SequenceOrder:       p.SequenceOrder,
		Condition:           p.Condition,
	}
	metaBlob, err := json.Marshal(meta)
	if err != nil {
		s.logFanOutError(ctx, nil, p.Execution.WorkflowID, fmt.Errorf("marshal metadata: %w", err))
		return
	}

	job, err := s.jobs.Create(ctx, &model.CreateJobRequest{
		EventID:  tpl.EventID,
		UserID:   p.UserID,
		Type:     tpl.Type,
		Payload:  tpl.Payload,
		Metadata: metaBlob,
		Priority: tpl.Priority,
	})
	if err != nil {
		if isUniqueViolation(err) {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "fan-out job already exists, skipping",
					"execution_id", p.Execution.ID,
					"event_id", p.Node.EventID,
				)
			}
			return
		}
		s.logFanOutError(ctx, nil, p.Execution.WorkflowID, fmt.Errorf("create fan-out job: %w", err))
		return
	}

	rec := &model.NodeExecution{
		ID:            uuid.NewString(),
		ExecutionID:   p.Execution.ID,
		NodeID:        p.Node.ID,
		JobID:         job.ID,
		SequenceOrder: p.SequenceOrder,
		Status:        model.JobStatusQueued,
	}
	if err := s.executions.CreateNodeExecution(ctx, rec); err != nil {
		s.logFanOutError(ctx, nil, p.Execution.WorkflowID, fmt.Errorf("record node execution: %w", err))
	}
}

func (s *WorkflowService) logFanOutError(ctx context.Context, job *model.Job, workflowID string, err error) {
	if s.logger == nil {
		return
	}
	attrs := []any{"workflow_id", workflowID, "error", err}
	if job != nil {
		attrs = append(attrs, "job_id", job.ID)
	}
	s.logger.ErrorContext(ctx, "workflow fan-out step failed", attrs...)
}

// resultCondition extracts the boolean condition flag a script may have set.
func resultCondition(job *model.Job) *bool {
	result, err := model.ParseExecutionResult(job.Result)
	if err != nil || result == nil {
		return nil
	}
	return result.Condition
}

// isUniqueViolation matches both the mapped Conflict the data layer returns
// and a raw driver error from repositories that do not translate.
func isUniqueViolation(err error) bool {
	if apperrors.IsConflict(err) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ core.WorkflowCoordinator = (*WorkflowService)(nil)
