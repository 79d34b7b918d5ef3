// Package workflow contains the pure structural rules for workflow graphs.
package workflow

import (
	"fmt"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// ValidationResult reports the outcome of a structural validation pass.
type ValidationResult struct {
	Valid bool
	Err   error
}

// Validate checks the two structural invariants of a workflow graph: every
// node has at most one incoming edge (branching fan-out only, no merges),
// and the edge relation induces no cycle. It is a pure function and must
// run before any node/edge persistence; a non-nil error blocks the save.
func Validate(nodes []model.WorkflowNode, edges []model.WorkflowEdge) ValidationResult {
	if err := checkNoMerge(nodes, edges); err != nil {
		return ValidationResult{Valid: false, Err: err}
	}
	if err := checkAcyclic(nodes, edges); err != nil {
		return ValidationResult{Valid: false, Err: err}
	}
	return ValidationResult{Valid: true}
}

// checkNoMerge rejects any target node with two or more incoming edges. The
// execution model only supports branching fan-out; fan-in merges would need
// join semantics the coordinator does not have.
func checkNoMerge(nodes []model.WorkflowNode, edges []model.WorkflowEdge) error {
	sources := make(map[string][]string, len(nodes))
	for _, e := range edges {
		sources[e.TargetNodeID] = append(sources[e.TargetNodeID], e.SourceNodeID)
	}
	for target, from := range sources {
		if len(from) > 1 {
			return &MergeError{TargetNodeID: target, SourceNodeIDs: from}
		}
	}
	return nil
}

// checkAcyclic runs a DFS from every unvisited node, tracking the recursion
// stack; an edge back into the stack is a cycle. Every node is visited so
// disconnected subgraphs are covered too.
func checkAcyclic(nodes []model.WorkflowNode, edges []model.WorkflowEdge) error {
	adjacency := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
	}

	visited := make(map[string]bool, len(nodes))
	onStack := make(map[string]bool, len(nodes))

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if onStack[next] {
				return &CycleError{NodeID: next}
			}
			if visited[next] {
				continue
			}
			if err := visit(next); err != nil {
				return err
			}
		}
		onStack[id] = false
		return nil
	}

	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		if err := visit(n.ID); err != nil {
			return err
		}
	}
	return nil
}

// MergeError reports a node with more than one incoming edge.
type MergeError struct {
	TargetNodeID  string
	SourceNodeIDs []string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf(
		"node %s has %d incoming connections; workflows support branching but not merging",
		e.TargetNodeID, len(e.SourceNodeIDs),
	)
}

// CycleError reports a back edge found during traversal.
type CycleError struct {
	NodeID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow contains a cycle through node %s", e.NodeID)
}
