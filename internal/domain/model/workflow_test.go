package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGraph builds a three-node graph: root fans out to mid and leaf is
// reached from mid. All ids are fresh UUIDs so Validate passes.
func testGraph() (*WorkflowGraph, string, string, string) {
	root, mid, leaf := uuid.NewString(), uuid.NewString(), uuid.NewString()
	g := &WorkflowGraph{
		WorkflowID: uuid.NewString(),
		Nodes: []WorkflowNode{
			{ID: root, EventID: 100},
			{ID: mid, EventID: 200},
			{ID: leaf, EventID: 200},
		},
		Edges: []WorkflowEdge{
			{ID: uuid.NewString(), SourceNodeID: root, TargetNodeID: mid, ConnectionType: ConnectionOnSuccess},
			{ID: uuid.NewString(), SourceNodeID: mid, TargetNodeID: leaf, ConnectionType: ConnectionAlways},
		},
	}
	return g, root, mid, leaf
}

func TestWorkflowGraphLookups(t *testing.T) {
	g, root, mid, leaf := testGraph()

	t.Run("NodeByID", func(t *testing.T) {
		require.NotNil(t, g.NodeByID(mid))
		assert.Equal(t, int64(200), g.NodeByID(mid).EventID)
		assert.Nil(t, g.NodeByID("missing"))
	})

	t.Run("NodesByEventID", func(t *testing.T) {
		assert.Len(t, g.NodesByEventID(200), 2)
		assert.Empty(t, g.NodesByEventID(999))
	})

	t.Run("OutgoingEdges", func(t *testing.T) {
		edges := g.OutgoingEdges(root)
		require.Len(t, edges, 1)
		assert.Equal(t, mid, edges[0].TargetNodeID)
		assert.Empty(t, g.OutgoingEdges(leaf))
	})

	t.Run("RootNodes", func(t *testing.T) {
		roots := g.RootNodes()
		require.Len(t, roots, 1)
		assert.Equal(t, root, roots[0].ID)
	})
}

func TestWorkflowGraphValidate(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		g, _, _, _ := testGraph()
		assert.NoError(t, g.Validate())
	})

	t.Run("blank workflow id", func(t *testing.T) {
		g, _, _, _ := testGraph()
		g.WorkflowID = "  "
		assert.ErrorContains(t, g.Validate(), "workflow id is required")
	})

	t.Run("non-uuid node id", func(t *testing.T) {
		g, _, _, _ := testGraph()
		g.Nodes[0].ID = "node-1"
		assert.ErrorContains(t, g.Validate(), "must be a valid UUID")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		g, root, _, _ := testGraph()
		g.Nodes[1].ID = root
		assert.ErrorContains(t, g.Validate(), "duplicate node id")
	})

	t.Run("node without event", func(t *testing.T) {
		g, _, _, _ := testGraph()
		g.Nodes[2].EventID = 0
		assert.ErrorContains(t, g.Validate(), "requires an event id")
	})

	t.Run("invalid connection type", func(t *testing.T) {
		g, _, _, _ := testGraph()
		g.Edges[0].ConnectionType = "SOMETIMES"
		assert.ErrorContains(t, g.Validate(), "invalid connection type")
	})

	t.Run("edge to unknown node", func(t *testing.T) {
		g, _, _, _ := testGraph()
		g.Edges[1].TargetNodeID = uuid.NewString()
		assert.ErrorContains(t, g.Validate(), "unknown target node")
	})

	t.Run("self loop", func(t *testing.T) {
		g, root, _, _ := testGraph()
		g.Edges[0].SourceNodeID = root
		g.Edges[0].TargetNodeID = root
		assert.ErrorContains(t, g.Validate(), "to itself")
	})
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
	assert.True(t, ExecutionStatusCancelled.Terminal())
}

func TestConnectionTypeValid(t *testing.T) {
	for _, ct := range []ConnectionType{ConnectionAlways, ConnectionOnSuccess, ConnectionOnFailure, ConnectionOnCondition} {
		assert.True(t, ct.Valid(), "connection %s", ct)
	}
	assert.False(t, ConnectionType("SOMETIMES").Valid())
}
