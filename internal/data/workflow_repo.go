package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/croniumhq/cronium-engine/internal/data/pgxutil"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	apperrors "github.com/croniumhq/cronium-engine/internal/errors"
)

// WorkflowRepo persists workflow graphs. Graphs are replaced wholesale
// inside one transaction; there is no partial node or edge mutation.
type WorkflowRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepo creates a new WorkflowRepo instance.
func NewWorkflowRepo(db *sql.DB, logger *slog.Logger) *WorkflowRepo {
	return &WorkflowRepo{DB: db, logger: logger}
}

// GetGraph loads the full node/edge set of one workflow.
func (r *WorkflowRepo) GetGraph(ctx context.Context, workflowID string) (*model.WorkflowGraph, error) {
	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)`, workflowID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check workflow: %w", err)
	}
	if !exists {
		return nil, ErrWorkflowNotFound
	}

	graph := &model.WorkflowGraph{WorkflowID: workflowID}

	nodes, err := r.loadNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	graph.Nodes = nodes

	edges, err := r.loadEdges(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	graph.Edges = edges

	return graph, nil
}

func (r *WorkflowRepo) loadNodes(ctx context.Context, workflowID string) ([]model.WorkflowNode, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, event_id, position
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []model.WorkflowNode
	for rows.Next() {
		var n model.WorkflowNode
		var position []byte
		if err := rows.Scan(&n.ID, &n.EventID, &position); err != nil {
			return nil, fmt.Errorf("scan workflow node: %w", err)
		}
		if len(position) > 0 {
			if err := json.Unmarshal(position, &n.Position); err != nil {
				return nil, fmt.Errorf("decode node position: %w", err)
			}
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow nodes: %w", err)
	}
	return nodes, nil
}

func (r *WorkflowRepo) loadEdges(ctx context.Context, workflowID string) ([]model.WorkflowEdge, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id, connection_type
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []model.WorkflowEdge
	for rows.Next() {
		var e model.WorkflowEdge
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &e.ConnectionType); err != nil {
			return nil, fmt.Errorf("scan workflow edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow edges: %w", err)
	}
	return edges, nil
}

// ReplaceGraph swaps the stored node/edge set for the graph's workflow in a
// single transaction. Callers validate structure first; this method only
// persists.
func (r *WorkflowRepo) ReplaceGraph(ctx context.Context, graph *model.WorkflowGraph) error {
	if graph == nil {
		return errors.New("graph is required")
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	// Constraint failures surface as typed application errors so callers
	// can tell a dangling event reference from a transport fault.
	txErr := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO workflows (id)
				VALUES ($1)
				ON CONFLICT (id) DO UPDATE SET updated_at = now()
			`, graph.WorkflowID); err != nil {
				return fmt.Errorf("upsert workflow: %w", err)
			}

			// Edges first so node deletion does not trip the FK.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM workflow_edges WHERE workflow_id = $1`, graph.WorkflowID); err != nil {
				return fmt.Errorf("clear workflow edges: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM workflow_nodes WHERE workflow_id = $1`, graph.WorkflowID); err != nil {
				return fmt.Errorf("clear workflow nodes: %w", err)
			}

			for _, n := range graph.Nodes {
				position, err := json.Marshal(n.Position)
				if err != nil {
					return fmt.Errorf("encode node position: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO workflow_nodes (id, workflow_id, event_id, position)
					VALUES ($1, $2, $3, $4)
				`, n.ID, graph.WorkflowID, n.EventID, position); err != nil {
					return fmt.Errorf("insert workflow node %s: %w", n.ID, err)
				}
			}

			for _, e := range graph.Edges {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO workflow_edges (id, workflow_id, source_node_id, target_node_id, connection_type)
					VALUES ($1, $2, $3, $4, $5)
				`, e.ID, graph.WorkflowID, e.SourceNodeID, e.TargetNodeID, e.ConnectionType); err != nil {
					return fmt.Errorf("insert workflow edge %s: %w", e.ID, err)
				}
			}

			return nil
		},
	})
	return apperrors.MapDBError(txErr)
}

// FindGraphsByEventID returns every workflow graph containing a node bound
// to the given event. The coordinator uses this to fan out after a job
// reaches a terminal state.
func (r *WorkflowRepo) FindGraphsByEventID(ctx context.Context, eventID int64) ([]*model.WorkflowGraph, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT DISTINCT workflow_id
		FROM workflow_nodes
		WHERE event_id = $1
		ORDER BY workflow_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("find workflows by event: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate workflow ids: %w", err)
	}
	_ = rows.Close()

	graphs := make([]*model.WorkflowGraph, 0, len(ids))
	for _, id := range ids {
		graph, err := r.GetGraph(ctx, id)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, graph)
	}
	return graphs, nil
}
