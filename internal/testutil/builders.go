// Package testutil provides testing utilities and helpers for the cronium job system.
package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			EventID:  1,
			UserID:   "user-1",
			Type:     model.JobTypeScript,
			Priority: 50,
			Payload:  json.RawMessage(`{"script": {"type": "BASH", "content": "echo hello"}}`),
		},
	}
}

// WithEventID sets the originating event ID.
func (b *JobRequestBuilder) WithEventID(eventID int64) *JobRequestBuilder {
	b.req.EventID = eventID
	return b
}

// WithUserID sets the owning user.
func (b *JobRequestBuilder) WithUserID(userID string) *JobRequestBuilder {
	b.req.UserID = userID
	return b
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithMetadata sets the job metadata.
func (b *JobRequestBuilder) WithMetadata(metadata json.RawMessage) *JobRequestBuilder {
	b.req.Metadata = metadata
	return b
}

// WithMetadataString sets the job metadata from a string.
func (b *JobRequestBuilder) WithMetadataString(metadata string) *JobRequestBuilder {
	b.req.Metadata = json.RawMessage(metadata)
	return b
}

// WithWorkflowExecution sets workflow correlation metadata.
func (b *JobRequestBuilder) WithWorkflowExecution(executionID string, sequenceOrder int) *JobRequestBuilder {
	meta, _ := json.Marshal(model.JobMetadata{
		WorkflowExecutionID: executionID,
		SequenceOrder:       sequenceOrder,
	})
	b.req.Metadata = meta
	return b
}

// WithScheduledFor sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledFor(scheduledFor time.Time) *JobRequestBuilder {
	b.req.ScheduledFor = &scheduledFor
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// Common test job request presets

// ScriptJobRequest creates a script job request with default values.
func ScriptJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithType(model.JobTypeScript).
		WithPayloadString(`{"script": {"type": "PYTHON", "content": "print('ok')"}}`).
		Build()
}

// HTTPJobRequest creates an http_request job request with default values.
func HTTPJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithType(model.JobTypeHTTPRequest).
		WithPayloadString(`{"http": {"method": "GET", "url": "https://example.com/health"}}`).
		Build()
}

// ToolActionJobRequest creates a tool_action job request with default values.
func ToolActionJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithType(model.JobTypeToolAction).
		WithPayloadString(`{"toolAction": {"tool": "slack", "action": "postMessage", "params": {"channel": "#ops"}}}`).
		Build()
}

// HighPriorityJobRequest creates a high priority job request.
func HighPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(100).
		Build()
}

// LowPriorityJobRequest creates a low priority job request.
func LowPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(10).
		Build()
}

// ScheduledJobRequest creates a job request scheduled for the future.
func ScheduledJobRequest(scheduledFor time.Time) *model.CreateJobRequest {
	return NewJobRequest().
		WithScheduledFor(scheduledFor).
		Build()
}

// TargetedScriptJobRequest creates a script job aimed at a specific SSH target.
func TargetedScriptJobRequest(host string, port int) *model.CreateJobRequest {
	payload := fmt.Sprintf(
		`{"script": {"type": "BASH", "content": "uptime"}, "target": {"host": %q, "port": %d, "username": "deploy", "password": "secret"}}`,
		host, port)
	return NewJobRequest().
		WithPayloadString(payload).
		Build()
}

// WorkflowGraphBuilder provides a fluent interface for building workflow graphs for testing.
type WorkflowGraphBuilder struct {
	graph *model.WorkflowGraph
}

// NewWorkflowGraph creates a builder for the given workflow ID.
func NewWorkflowGraph(workflowID string) *WorkflowGraphBuilder {
	return &WorkflowGraphBuilder{
		graph: &model.WorkflowGraph{WorkflowID: workflowID},
	}
}

// AddNode appends a node referencing the given event.
func (b *WorkflowGraphBuilder) AddNode(nodeID string, eventID int64) *WorkflowGraphBuilder {
	b.graph.Nodes = append(b.graph.Nodes, model.WorkflowNode{
		ID:      nodeID,
		EventID: eventID,
	})
	return b
}

// AddEdge appends an edge between two nodes with the given connection type.
func (b *WorkflowGraphBuilder) AddEdge(sourceID, targetID string, conn model.ConnectionType) *WorkflowGraphBuilder {
	b.graph.Edges = append(b.graph.Edges, model.WorkflowEdge{
		ID:             fmt.Sprintf("edge-%d", len(b.graph.Edges)+1),
		SourceNodeID:   sourceID,
		TargetNodeID:   targetID,
		ConnectionType: conn,
	})
	return b
}

// Build returns the constructed WorkflowGraph.
func (b *WorkflowGraphBuilder) Build() *model.WorkflowGraph {
	return b.graph
}

// LinearWorkflowGraph builds a workflow of n nodes chained with ON_SUCCESS
// edges. Node IDs are "node-1".."node-n", event IDs start at startEventID.
func LinearWorkflowGraph(workflowID string, n int, startEventID int64) *model.WorkflowGraph {
	b := NewWorkflowGraph(workflowID)
	for i := 1; i <= n; i++ {
		b.AddNode(fmt.Sprintf("node-%d", i), startEventID+int64(i-1))
	}
	for i := 1; i < n; i++ {
		b.AddEdge(fmt.Sprintf("node-%d", i), fmt.Sprintf("node-%d", i+1), model.ConnectionOnSuccess)
	}
	return b.Build()
}
