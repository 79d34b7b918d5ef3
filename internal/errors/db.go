package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Patterns for pulling structure out of PgError.Detail.
var (
	// "Key (field)=(value) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table ..."
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// "... is not present in table ..."
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// MapDBError translates driver errors into AppError values:
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - foreign key violations → ForeignKey
//   - check and NOT NULL violations → Validation
//   - context deadline/cancel → Timeout/Canceled
//
// Errors it does not recognize pass through unchanged, so sentinel checks
// in callers keep working.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Code:    ErrCodeTimeout,
			Message: "Database operation timed out.",
			Cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{
			Code:    ErrCodeCanceled,
			Message: "Database operation was canceled.",
			Cause:   err,
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "Resource not found",
			Cause:   err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.ForeignKeyViolation:
		return mapForeignKeyViolation(pgErr)
	case pgerrcode.CheckViolation:
		return mapCheckViolation(pgErr)
	case pgerrcode.NotNullViolation:
		return mapNotNullViolation(pgErr)
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred.",
			Cause:   pgErr,
		}
	}
}

// mapUniqueViolation maps unique constraint violations to Conflict errors,
// naming the colliding field when the driver exposes enough to identify it.
func mapUniqueViolation(pgErr *pgconn.PgError) error {
	field := pgErr.ColumnName

	// The Detail message carries the key list for multi-column and
	// expression indexes where ColumnName is empty.
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}

	// Last resort: infer from the constraint name.
	if field == "" {
		field = inferFieldFromConstraint(pgErr.ConstraintName)
	}

	return &AppError{
		Code:    ErrCodeConflict,
		Message: "This value already exists.",
		Field:   field,
		Cause:   pgErr,
	}
}

// mapForeignKeyViolation maps foreign key violations to ForeignKey errors.
// The Detail text distinguishes deleting a referenced parent from inserting
// a child whose parent is missing.
func mapForeignKeyViolation(pgErr *pgconn.PgError) error {
	var message string

	if pgErr.Detail != "" {
		if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			message = "Cannot delete because this item is in use by " + mapTableToDomain(m[1]) + "."
		} else if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			message = "Cannot complete operation because the referenced " + mapTableToDomain(m[1]) + " does not exist."
		}
	}

	if message == "" && pgErr.TableName != "" {
		message = "Cannot complete operation because this item is in use by " + mapTableToDomain(pgErr.TableName) + "."
	}

	if message == "" {
		message = inferForeignKeyMessage(pgErr.ConstraintName)
	}

	return &AppError{
		Code:    ErrCodeForeignKey,
		Message: message,
		Cause:   pgErr,
	}
}

func mapNotNullViolation(pgErr *pgconn.PgError) error {
	if pgErr.ColumnName != "" {
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "This field is required.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	}
	return &AppError{
		Code:    ErrCodeValidation,
		Message: "Required field is missing.",
		Cause:   pgErr,
	}
}

func mapCheckViolation(pgErr *pgconn.PgError) error {
	if pgErr.ColumnName != "" {
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "This field has an invalid value.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	}
	return &AppError{
		Code:    ErrCodeValidation,
		Message: "Invalid data.",
		Cause:   pgErr,
	}
}

// inferFieldFromConstraint infers the field from a constraint name such as
// "workflows_name_key" → "name". Returns "" when the name is ambiguous
// (multi-column constraints, expression indexes).
func inferFieldFromConstraint(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	parts := strings.Split(constraintName, "_")
	if len(parts) > 3 {
		// Multi-column or multi-word table: could name the wrong field.
		return ""
	}
	if len(parts) == 3 {
		candidate := parts[1]
		if isFunctionName(candidate) {
			// Expression index like "workflows_lower_key".
			return ""
		}
		return candidate
	}
	return ""
}

// mapTableToDomain maps schema table names to the names surfaced in error
// messages.
func mapTableToDomain(tableName string) string {
	tableName = strings.ToLower(strings.TrimSpace(tableName))

	domainMap := map[string]string{
		"jobs":                "Job",
		"workflows":           "Workflow",
		"workflow_nodes":      "Workflow Node",
		"workflow_edges":      "Workflow Edge",
		"workflow_executions": "Workflow Execution",
		"node_executions":     "Node Execution",
		"event_templates":     "Event Template",
		"user_variables":      "User Variable",
	}
	if domainName, ok := domainMap[tableName]; ok {
		return domainName
	}

	return capitalizeFirst(strings.ReplaceAll(tableName, "_", " "))
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	words := strings.Split(s, " ")
	for i, word := range words {
		if len(word) > 0 && word[0] >= 'a' && word[0] <= 'z' {
			words[i] = string(word[0]-32) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// inferForeignKeyMessage falls back to the constraint name when the driver
// gives no table metadata. Node checks run before workflow checks because
// edge constraints ("workflow_edges_source_node_id_fkey") name both.
func inferForeignKeyMessage(constraintName string) string {
	constraintName = strings.ToLower(constraintName)

	if strings.Contains(constraintName, "node") {
		return "Cannot complete operation because a workflow node references this item."
	}
	if strings.Contains(constraintName, "execution") {
		return "Cannot complete operation because an execution references this item."
	}
	if strings.Contains(constraintName, "workflow") {
		return "Cannot complete operation because a workflow references this item."
	}
	if strings.Contains(constraintName, "event") {
		return "Cannot complete operation because the referenced event does not exist."
	}
	if strings.Contains(constraintName, "job") {
		return "Cannot complete operation because a job references this item."
	}

	return "Cannot complete operation because this item is in use."
}

// isFunctionName reports whether s looks like a SQL function commonly used
// in expression indexes.
func isFunctionName(s string) bool {
	switch strings.ToLower(s) {
	case "lower", "upper", "trim", "ltrim", "rtrim",
		"md5", "sha1", "sha256", "encode", "decode":
		return true
	}
	return false
}
