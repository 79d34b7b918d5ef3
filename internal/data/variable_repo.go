package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/croniumhq/cronium-engine/internal/errors"
)

// VariableRepo is the durable per-user variable store scripts read and write
// through the helper shim. Writes are last-write-wins per key.
type VariableRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewVariableRepo creates a new VariableRepo instance.
func NewVariableRepo(db *sql.DB, logger *slog.Logger) *VariableRepo {
	return &VariableRepo{DB: db, logger: logger}
}

// GetUserVariables returns every variable stored for the user.
func (r *VariableRepo) GetUserVariables(ctx context.Context, userID string) (map[string]json.RawMessage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("user id is required")
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT key, value
		FROM user_variables
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load user variables: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	vars := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan user variable: %w", err)
		}
		vars[key] = append(json.RawMessage(nil), value...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user variables: %w", err)
	}
	return vars, nil
}

// SetUserVariable upserts one variable. The most recent write wins; there is
// no per-key versioning.
func (r *VariableRepo) SetUserVariable(ctx context.Context, userID, key string, value json.RawMessage) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.Validation("user id is required")
	}
	if strings.TrimSpace(key) == "" {
		return apperrors.ValidationField("key", "variable key is required")
	}
	if len(value) == 0 || !json.Valid(value) {
		return apperrors.ValidationField("value", "variable value must be valid JSON")
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO user_variables (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = now()
	`, userID, key, []byte(value)); err != nil {
		return fmt.Errorf("set user variable: %w", apperrors.MapDBError(err))
	}
	return nil
}

// DeleteUserVariableByKey removes one variable. Deleting a missing key
// returns ErrVariableNotFound.
func (r *VariableRepo) DeleteUserVariableByKey(ctx context.Context, userID, key string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.Validation("user id is required")
	}
	if strings.TrimSpace(key) == "" {
		return apperrors.ValidationField("key", "variable key is required")
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM user_variables
		WHERE user_id = $1 AND key = $2
	`, userID, key)
	if err != nil {
		return fmt.Errorf("delete user variable: %w", apperrors.MapDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVariableNotFound
	}
	return nil
}
