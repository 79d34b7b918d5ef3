package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s", s)
	}

	active := []JobStatus{JobStatusQueued, JobStatusClaimed, JobStatusRunning}
	for _, s := range active {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}

func TestJobStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusClaimed, true},
		{JobStatusQueued, JobStatusRunning, false},
		{JobStatusClaimed, JobStatusRunning, true},
		{JobStatusClaimed, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusQueued, false},
		// Cancellation is reachable from any non-terminal state.
		{JobStatusQueued, JobStatusCancelled, true},
		{JobStatusRunning, JobStatusCancelled, true},
		// Terminal states are final.
		{JobStatusCompleted, JobStatusCancelled, false},
		{JobStatusFailed, JobStatusQueued, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestJobTypeUnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte(" Script ")))
	assert.Equal(t, JobTypeScript, jt)

	assert.Error(t, jt.UnmarshalText([]byte("cron")))
}

func TestParseJobMetadata(t *testing.T) {
	t.Run("empty blob yields zero value", func(t *testing.T) {
		meta, err := ParseJobMetadata(nil)
		require.NoError(t, err)
		assert.Equal(t, JobMetadata{}, meta)
	})

	t.Run("correlation fields decode", func(t *testing.T) {
		meta, err := ParseJobMetadata(json.RawMessage(
			`{"workflowExecutionId":"exec-1","sequenceOrder":2,"condition":true,"logId":"log-1"}`,
		))
		require.NoError(t, err)
		assert.Equal(t, "exec-1", meta.WorkflowExecutionID)
		assert.Equal(t, 2, meta.SequenceOrder)
		require.NotNil(t, meta.Condition)
		assert.True(t, *meta.Condition)
		assert.Equal(t, "log-1", meta.LogID)
	})

	t.Run("malformed blob errors", func(t *testing.T) {
		_, err := ParseJobMetadata(json.RawMessage(`{`))
		require.Error(t, err)
	})
}

func TestCreateJobRequestValidate(t *testing.T) {
	valid := func() *CreateJobRequest {
		return &CreateJobRequest{
			EventID:  1,
			UserID:   "user-1",
			Type:     JobTypeScript,
			Priority: 50,
			Payload:  json.RawMessage(`{"script": {"type": "BASH", "content": "echo hi"}}`),
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*CreateJobRequest)
		want   string
	}{
		{"invalid type", func(r *CreateJobRequest) { r.Type = "cron" }, "invalid job type"},
		{"zero event id", func(r *CreateJobRequest) { r.EventID = 0 }, "event id is required"},
		{"blank user", func(r *CreateJobRequest) { r.UserID = "  " }, "user id is required"},
		{"empty payload", func(r *CreateJobRequest) { r.Payload = nil }, "payload is required"},
		{"priority above range", func(r *CreateJobRequest) { r.Priority = 101 }, "priority must be between"},
		{"priority below range", func(r *CreateJobRequest) { r.Priority = -1 }, "priority must be between"},
		{
			"payload variant mismatch",
			func(r *CreateJobRequest) { r.Payload = json.RawMessage(`{"http": {"method": "GET", "url": "https://x"}}`) },
			"script payload is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			assert.ErrorContains(t, req.Validate(), tt.want)
		})
	}
}

func TestClaimRequestValidate(t *testing.T) {
	valid := ClaimRequest{OrchestratorID: "orch-1", BatchSize: 5, TypeFilter: []JobType{JobTypeScript}}
	require.NoError(t, valid.Validate())

	blankOrch := valid
	blankOrch.OrchestratorID = " "
	assert.ErrorContains(t, blankOrch.Validate(), "orchestrator id is required")

	zeroBatch := valid
	zeroBatch.BatchSize = 0
	assert.ErrorContains(t, zeroBatch.Validate(), "batch size must be positive")

	badFilter := valid
	badFilter.TypeFilter = []JobType{"cron"}
	assert.ErrorContains(t, badFilter.Validate(), "invalid job type in filter")
}
