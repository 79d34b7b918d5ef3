package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConnectionType gates when a workflow edge fires after its source event terminates.
type ConnectionType string

const (
	// ConnectionAlways fires regardless of the source outcome.
	ConnectionAlways ConnectionType = "ALWAYS"
	// ConnectionOnSuccess fires only when the source job completed.
	ConnectionOnSuccess ConnectionType = "ON_SUCCESS"
	// ConnectionOnFailure fires only when the source job failed.
	ConnectionOnFailure ConnectionType = "ON_FAILURE"
	// ConnectionOnCondition fires only when the source result carries a condition flag.
	ConnectionOnCondition ConnectionType = "ON_CONDITION"
)

// Valid returns true if the ConnectionType is valid.
func (c ConnectionType) Valid() bool {
	switch c {
	case ConnectionAlways, ConnectionOnSuccess, ConnectionOnFailure, ConnectionOnCondition:
		return true
	}
	return false
}

// Position is the UI placement of a node; the engine stores it opaquely.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorkflowNode binds an event into a workflow graph.
type WorkflowNode struct {
	ID       string   `json:"id"       db:"id"`
	EventID  int64    `json:"event_id" db:"event_id"`
	Position Position `json:"position" db:"position"`
}

// WorkflowEdge is a typed connection between two workflow nodes.
type WorkflowEdge struct {
	ID             string         `json:"id"              db:"id"`
	SourceNodeID   string         `json:"source_node_id"  db:"source_node_id"`
	TargetNodeID   string         `json:"target_node_id"  db:"target_node_id"`
	ConnectionType ConnectionType `json:"connection_type" db:"connection_type"`
}

// WorkflowGraph is the full node/edge set of one workflow. Graphs are
// replaced wholesale on save, never partially mutated.
type WorkflowGraph struct {
	WorkflowID string         `json:"workflow_id"`
	Nodes      []WorkflowNode `json:"nodes"`
	Edges      []WorkflowEdge `json:"edges"`
}

// NodeByID returns the node with the given id, or nil.
func (g *WorkflowGraph) NodeByID(id string) *WorkflowNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// NodesByEventID returns every node bound to the given event.
func (g *WorkflowGraph) NodesByEventID(eventID int64) []WorkflowNode {
	var out []WorkflowNode
	for _, n := range g.Nodes {
		if n.EventID == eventID {
			out = append(out, n)
		}
	}
	return out
}

// OutgoingEdges returns the edges whose source is the given node.
func (g *WorkflowGraph) OutgoingEdges(nodeID string) []WorkflowEdge {
	var out []WorkflowEdge
	for _, e := range g.Edges {
		if e.SourceNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// RootNodes returns the nodes with no incoming edge; these start the
// workflow when it is triggered.
func (g *WorkflowGraph) RootNodes() []WorkflowNode {
	hasIncoming := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		hasIncoming[e.TargetNodeID] = true
	}
	var roots []WorkflowNode
	for _, n := range g.Nodes {
		if !hasIncoming[n.ID] {
			roots = append(roots, n)
		}
	}
	return roots
}

// Validate checks referential integrity of the graph: well-formed ids,
// edges pointing at known nodes, no self loops. Structural rules (no merge,
// acyclicity) live in the workflow validator.
func (g *WorkflowGraph) Validate() error {
	if strings.TrimSpace(g.WorkflowID) == "" {
		return errors.New("workflow id is required")
	}
	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, err := uuid.Parse(n.ID); err != nil {
			return fmt.Errorf("node id %q must be a valid UUID", n.ID)
		}
		if nodeIDs[n.ID] {
			return fmt.Errorf("duplicate node id %s", n.ID)
		}
		if n.EventID <= 0 {
			return fmt.Errorf("node %s requires an event id", n.ID)
		}
		nodeIDs[n.ID] = true
	}
	for _, e := range g.Edges {
		if !e.ConnectionType.Valid() {
			return fmt.Errorf("edge %s has invalid connection type %q", e.ID, e.ConnectionType)
		}
		if !nodeIDs[e.SourceNodeID] {
			return fmt.Errorf("edge %s references unknown source node %s", e.ID, e.SourceNodeID)
		}
		if !nodeIDs[e.TargetNodeID] {
			return fmt.Errorf("edge %s references unknown target node %s", e.ID, e.TargetNodeID)
		}
		if e.SourceNodeID == e.TargetNodeID {
			return fmt.Errorf("edge %s connects node %s to itself", e.ID, e.SourceNodeID)
		}
	}
	return nil
}

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates nodes are still pending or executing.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates every reached node completed.
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates at least one reached node failed.
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusCancelled indicates the execution was cancelled.
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal returns true for statuses that end the execution lifecycle.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// WorkflowExecution is one firing of a workflow trigger.
type WorkflowExecution struct {
	ID          string          `json:"id"                     db:"id"`
	WorkflowID  string          `json:"workflow_id"            db:"workflow_id"`
	UserID      string          `json:"user_id"                db:"user_id"`
	Status      ExecutionStatus `json:"status"                 db:"status"`
	StartedAt   time.Time       `json:"started_at"             db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// NodeExecution correlates a workflow node with the job that ran for it.
// It holds the job id as a weak reference only; the job store owns the row.
type NodeExecution struct {
	ID            string     `json:"id"                     db:"id"`
	ExecutionID   string     `json:"execution_id"           db:"execution_id"`
	NodeID        string     `json:"node_id"                db:"node_id"`
	JobID         string     `json:"job_id"                 db:"job_id"`
	SequenceOrder int        `json:"sequence_order"         db:"sequence_order"`
	Status        JobStatus  `json:"status"                 db:"status"`
	CreatedAt     time.Time  `json:"created_at"             db:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
