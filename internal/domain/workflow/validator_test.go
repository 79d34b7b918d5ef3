package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

func nodes(ids ...string) []model.WorkflowNode {
	out := make([]model.WorkflowNode, 0, len(ids))
	for i, id := range ids {
		out = append(out, model.WorkflowNode{ID: id, EventID: int64(i + 1)})
	}
	return out
}

func edge(source, target string) model.WorkflowEdge {
	return model.WorkflowEdge{
		ID:             source + "->" + target,
		SourceNodeID:   source,
		TargetNodeID:   target,
		ConnectionType: model.ConnectionAlways,
	}
}

func TestValidate(t *testing.T) {
	t.Run("empty graph is valid", func(t *testing.T) {
		result := Validate(nil, nil)
		assert.True(t, result.Valid)
		assert.NoError(t, result.Err)
	})

	t.Run("linear chain is valid", func(t *testing.T) {
		result := Validate(nodes("a", "b", "c"), []model.WorkflowEdge{
			edge("a", "b"),
			edge("b", "c"),
		})
		assert.True(t, result.Valid)
	})

	t.Run("branching fan-out is valid", func(t *testing.T) {
		// a fans out to b and c; c continues to d. No node has two parents.
		result := Validate(nodes("a", "b", "c", "d"), []model.WorkflowEdge{
			edge("a", "b"),
			edge("a", "c"),
			edge("c", "d"),
		})
		assert.True(t, result.Valid)
	})
}

func TestValidateRejectsMerge(t *testing.T) {
	// a and b both feed c.
	result := Validate(nodes("a", "b", "c"), []model.WorkflowEdge{
		edge("a", "c"),
		edge("b", "c"),
	})
	require.False(t, result.Valid)

	var mergeErr *MergeError
	require.ErrorAs(t, result.Err, &mergeErr)
	assert.Equal(t, "c", mergeErr.TargetNodeID)
	assert.Len(t, mergeErr.SourceNodeIDs, 2)
	assert.Contains(t, mergeErr.Error(), "branching but not merging")
}

func TestValidateRejectsCycle(t *testing.T) {
	result := Validate(nodes("a", "b", "c"), []model.WorkflowEdge{
		edge("a", "b"),
		edge("b", "c"),
		edge("c", "a"),
	})
	require.False(t, result.Valid)

	var cycleErr *CycleError
	require.ErrorAs(t, result.Err, &cycleErr)
}

func TestValidateFindsCycleInDisconnectedSubgraph(t *testing.T) {
	// a->b is a clean chain; c and d form a cycle off to the side.
	result := Validate(nodes("a", "b", "c", "d"), []model.WorkflowEdge{
		edge("a", "b"),
		edge("c", "d"),
		edge("d", "c"),
	})
	require.False(t, result.Valid)

	var cycleErr *CycleError
	require.ErrorAs(t, result.Err, &cycleErr)
}
