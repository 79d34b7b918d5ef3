package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectLogStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    JobStatus
		result    *ExecutionResult
		lastError string
		want      LogStatus
	}{
		{"queued maps to pending", JobStatusQueued, nil, "", LogStatusPending},
		{"claimed maps to pending", JobStatusClaimed, nil, "", LogStatusPending},
		{"running maps to running", JobStatusRunning, nil, "", LogStatusRunning},
		{"completed maps to success", JobStatusCompleted, &ExecutionResult{ExitCode: 0}, "", LogStatusSuccess},
		{"failed maps to failure", JobStatusFailed, &ExecutionResult{ExitCode: 1}, "exit status 1", LogStatusFailure},
		{"cancelled maps to failure", JobStatusCancelled, nil, "", LogStatusFailure},

		{"exit code -1 is a timeout", JobStatusFailed, &ExecutionResult{ExitCode: -1}, "", LogStatusTimeout},
		{"timed out in last error", JobStatusFailed, nil, "script timed out after 90s", LogStatusTimeout},
		{"timeout in result error", JobStatusFailed, &ExecutionResult{ExitCode: 1, Error: "Timeout waiting for shell"}, "", LogStatusTimeout},
		{"timeout text only flags failures", JobStatusCompleted, &ExecutionResult{ExitCode: 0, Error: ""}, "timeout", LogStatusSuccess},

		{"exit code at partial floor", JobStatusCompleted, &ExecutionResult{ExitCode: 100}, "", LogStatusPartial},
		{
			"failed target flags partial",
			JobStatusCompleted,
			&ExecutionResult{ExitCode: 0, Targets: []TargetResult{
				{Target: "deploy@srv1:22", Status: "SUCCESS"},
				{Target: "deploy@srv2:22", Status: "FAILURE", Error: "dial timeout"},
			}},
			"",
			LogStatusPartial,
		},
		{
			"all targets succeeding stays success",
			JobStatusCompleted,
			&ExecutionResult{ExitCode: 0, Targets: []TargetResult{
				{Target: "deploy@srv1:22", Status: "SUCCESS"},
			}},
			"",
			LogStatusSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectLogStatus(tt.status, tt.result, tt.lastError))
		})
	}
}
