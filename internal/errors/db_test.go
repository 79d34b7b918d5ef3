package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBErrorPassthrough(t *testing.T) {
	assert.Nil(t, MapDBError(nil))

	plain := errors.New("connection refused")
	assert.ErrorIs(t, MapDBError(plain), plain)
	assert.Equal(t, ErrorCode(""), GetCode(MapDBError(plain)))
}

func TestMapDBErrorContextErrors(t *testing.T) {
	assert.True(t, IsTimeout(MapDBError(context.DeadlineExceeded)))
	assert.True(t, IsCanceled(MapDBError(context.Canceled)))
}

func TestMapDBErrorNoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)

	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMapDBErrorUniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "column name metadata",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				ColumnName: "key",
			},
			wantField: "key",
		},
		{
			name: "field from detail",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "idx_jobs_workflow_fanout",
				Detail:         `Key (user_id, key)=(u1, color) already exists.`,
			},
			wantField: "user_id, key",
		},
		{
			name: "field inferred from constraint",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "workflows_name_key",
			},
			wantField: "name",
		},
		{
			name: "ambiguous constraint yields no field",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "user_variables_user_id_key_key",
			},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)

			assert.True(t, IsConflict(err))
			assert.Equal(t, tt.wantField, GetField(err))

			// The raw driver error stays reachable for callers that still
			// match on pgconn.
			var pgErr *pgconn.PgError
			assert.True(t, errors.As(err, &pgErr))
		})
	}
}

func TestMapDBErrorForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name         string
		pgErr        *pgconn.PgError
		wantContains string
	}{
		{
			name: "deleting a referenced workflow",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.ForeignKeyViolation,
				ConstraintName: "workflow_nodes_workflow_id_fkey",
				Detail:         `Key (id)=(wf-1) is still referenced from table "workflow_nodes".`,
			},
			wantContains: "in use by Workflow Node",
		},
		{
			name: "inserting a node for a missing workflow",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.ForeignKeyViolation,
				ConstraintName: "workflow_nodes_workflow_id_fkey",
				Detail:         `Key (workflow_id)=(wf-1) is not present in table "workflows".`,
			},
			wantContains: "Workflow does not exist",
		},
		{
			name: "table metadata fallback",
			pgErr: &pgconn.PgError{
				Code:      pgerrcode.ForeignKeyViolation,
				TableName: "node_executions",
			},
			wantContains: "Node Execution",
		},
		{
			name: "constraint name fallback",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.ForeignKeyViolation,
				ConstraintName: "workflow_edges_source_node_id_fkey",
			},
			wantContains: "workflow node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)

			assert.True(t, IsForeignKey(err))
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Message, tt.wantContains)
		})
	}
}

func TestMapDBErrorValidationViolations(t *testing.T) {
	notNull := MapDBError(&pgconn.PgError{
		Code:       pgerrcode.NotNullViolation,
		ColumnName: "event_id",
	})
	assert.True(t, IsValidation(notNull))
	assert.Equal(t, "event_id", GetField(notNull))

	check := MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation})
	assert.True(t, IsValidation(check))
	assert.Equal(t, "", GetField(check))
}

func TestMapDBErrorUnknownPgError(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: "57P01", Message: "admin shutdown"})

	assert.True(t, IsInternal(err))
}

func TestInferFieldFromConstraint(t *testing.T) {
	tests := []struct {
		constraintName string
		want           string
	}{
		{"workflows_name_key", "name"},
		{"jobs_id_unique", "id"},
		{"user_variables_user_id_key_key", ""}, // multi-word table, ambiguous
		{"workflows_lower_key", ""},            // expression index
		{"workflows_key", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.constraintName, func(t *testing.T) {
			assert.Equal(t, tt.want, inferFieldFromConstraint(tt.constraintName))
		})
	}
}

func TestMapTableToDomain(t *testing.T) {
	tests := []struct {
		tableName string
		want      string
	}{
		{"jobs", "Job"},
		{"workflows", "Workflow"},
		{"workflow_nodes", "Workflow Node"},
		{"workflow_edges", "Workflow Edge"},
		{"workflow_executions", "Workflow Execution"},
		{"node_executions", "Node Execution"},
		{"event_templates", "Event Template"},
		{"user_variables", "User Variable"},
		{"  JOBS  ", "Job"},
		{"audit_log", "Audit Log"}, // unknown table falls back to title case
	}

	for _, tt := range tests {
		t.Run(tt.tableName, func(t *testing.T) {
			assert.Equal(t, tt.want, mapTableToDomain(tt.tableName))
		})
	}
}
