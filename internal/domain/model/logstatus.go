package model

import (
	"encoding/json"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// LogStatus is the status projected onto the external log record for a job.
type LogStatus string

const (
	// LogStatusPending is projected for queued and claimed jobs.
	LogStatusPending LogStatus = "PENDING"
	// LogStatusRunning is projected for running jobs.
	LogStatusRunning LogStatus = "RUNNING"
	// LogStatusSuccess is projected for completed jobs.
	LogStatusSuccess LogStatus = "SUCCESS"
	// LogStatusFailure is projected for failed and cancelled jobs.
	LogStatusFailure LogStatus = "FAILURE"
	// LogStatusTimeout is projected for failures that look like timeouts.
	LogStatusTimeout LogStatus = "TIMEOUT"
	// LogStatusPartial is projected for completions where some targets did not succeed.
	LogStatusPartial LogStatus = "PARTIAL"
)

// exit codes >= partialExitCodeFloor on a completed job signal partial success.
const partialExitCodeFloor = 100

// failedTargetsQuery selects per-target results that did not succeed.
const failedTargetsQuery = "targets[?status != 'SUCCESS']"

// ProjectLogStatus derives the log-status projection for a job transition.
// Order matters: the timeout and partial checks run before the generic
// status mapping.
func ProjectLogStatus(status JobStatus, result *ExecutionResult, lastError string) LogStatus {
	if status == JobStatusFailed && isTimeoutOutcome(result, lastError) {
		return LogStatusTimeout
	}
	if status == JobStatusCompleted && isPartialOutcome(result) {
		return LogStatusPartial
	}

	switch status {
	case JobStatusQueued, JobStatusClaimed:
		return LogStatusPending
	case JobStatusRunning:
		return LogStatusRunning
	case JobStatusCompleted:
		return LogStatusSuccess
	default:
		return LogStatusFailure
	}
}

func isTimeoutOutcome(result *ExecutionResult, lastError string) bool {
	if result != nil && result.ExitCode == -1 {
		return true
	}
	for _, text := range []string{lastError, resultError(result)} {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") {
			return true
		}
	}
	return false
}

func resultError(result *ExecutionResult) string {
	if result == nil {
		return ""
	}
	return result.Error
}

func isPartialOutcome(result *ExecutionResult) bool {
	if result == nil {
		return false
	}
	if result.ExitCode >= partialExitCodeFloor {
		return true
	}
	return anyTargetFailed(result)
}

// anyTargetFailed inspects the per-target results via a jmespath query so
// the check tolerates result blobs produced by older runtimes with extra
// fields.
func anyTargetFailed(result *ExecutionResult) bool {
	if len(result.Targets) == 0 {
		return false
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fallbackTargetScan(result)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fallbackTargetScan(result)
	}

	matches, err := jmespath.Search(failedTargetsQuery, doc)
	if err != nil {
		return fallbackTargetScan(result)
	}
	failed, ok := matches.([]any)
	return ok && len(failed) > 0
}

func fallbackTargetScan(result *ExecutionResult) bool {
	for _, t := range result.Targets {
		if t.Status != "SUCCESS" {
			return true
		}
	}
	return false
}
