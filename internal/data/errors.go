package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Workflow repository sentinels.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// Execution repository sentinels.
	ErrExecutionNotFound     = errors.New("workflow execution not found")
	ErrNodeExecutionNotFound = errors.New("node execution not found")

	// Variable store sentinels.
	ErrVariableNotFound = errors.New("variable not found")
)
